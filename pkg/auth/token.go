package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

const (
	DefaultIssuer     = "tenantguard"
	DefaultAccessTTL  = 60 * time.Minute
	DefaultRefreshTTL = 24 * time.Hour

	minSecretLength = 32
)

// Claims are the JWT claims of a session token
type Claims struct {
	// TenantID is omitted for system-global subjects
	TenantID *int64 `json:"tid,omitempty"`
	// AuthTime is the original login time, carried across refreshes
	AuthTime *jwt.NumericDate `json:"auth_time,omitempty"`
	// IssuedAtNano is iat in nanoseconds. Subject revocation compares
	// against it so tokens issued later in the same second stay valid.
	IssuedAtNano int64 `json:"iat_ns,omitempty"`
	jwt.RegisteredClaims
}

// Issued returns the precise issue time, falling back to iat
func (c *Claims) Issued() time.Time {
	if c.IssuedAtNano > 0 {
		return time.Unix(0, c.IssuedAtNano).UTC()
	}
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// SubjectID returns the numeric subject
func (c *Claims) SubjectID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: subject %q", ErrTokenMalformed, c.Subject)
	}
	return id, nil
}

// SignedToken is an issued session token
type SignedToken struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ID        string    `json:"-"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenServiceOption configures a TokenService
type TokenServiceOption func(*TokenService) error

// WithIssuer overrides the token issuer claim
func WithIssuer(issuer string) TokenServiceOption {
	return func(s *TokenService) error {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
		return nil
	}
}

// WithAccessTTL configures token lifetime
func WithAccessTTL(ttl time.Duration) TokenServiceOption {
	return func(s *TokenService) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL bounds how long after login a session may still be refreshed
func WithRefreshTTL(ttl time.Duration) TokenServiceOption {
	return func(s *TokenService) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source
func WithClock(fn func() time.Time) TokenServiceOption {
	return func(s *TokenService) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithRevocationStore sets where revocations are kept
func WithRevocationStore(store RevocationStore) TokenServiceOption {
	return func(s *TokenService) error {
		s.revocations = store
		return nil
	}
}

// WithTokenLogger sets the logger
func WithTokenLogger(logger *observability.Logger) TokenServiceOption {
	return func(s *TokenService) error {
		s.logger = logger
		return nil
	}
}

// WithTokenMetrics enables validation counters
func WithTokenMetrics(metrics *observability.Metrics) TokenServiceOption {
	return func(s *TokenService) error {
		s.metrics = metrics
		return nil
	}
}

// TokenService issues, validates, refreshes and revokes HS256 session tokens.
// It is safe for concurrent use.
type TokenService struct {
	secret      []byte
	issuer      string
	accessTTL   time.Duration
	refreshTTL  time.Duration
	now         func() time.Time
	revocations RevocationStore
	logger      *observability.Logger
	metrics     *observability.Metrics
	parser      *jwt.Parser
}

// NewTokenService creates a token service signing with secret
func NewTokenService(secret string, opts ...TokenServiceOption) (*TokenService, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("token signing secret must be at least %d bytes", minSecretLength)
	}

	s := &TokenService{
		secret:     []byte(secret),
		issuer:     DefaultIssuer,
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.revocations == nil {
		s.revocations = NewMemoryRevocationStore(s.accessTTL)
	}
	s.logger = observability.OrNop(s.logger)

	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	return s, nil
}

// AccessTTL returns the configured token lifetime
func (s *TokenService) AccessTTL() time.Duration {
	return s.accessTTL
}

// IssueToken signs a new token for user
func (s *TokenService) IssueToken(user *User) (*SignedToken, error) {
	if user == nil || user.ID <= 0 {
		return nil, errors.New("user is required")
	}
	return s.issue(strconv.FormatInt(user.ID, 10), user.TenantID, s.now())
}

func (s *TokenService) issue(subject string, tenantID *int64, authTime time.Time) (*SignedToken, error) {
	now := s.now().UTC()
	claims := Claims{
		TenantID:     tenantID,
		AuthTime:     jwt.NewNumericDate(authTime),
		IssuedAtNano: now.UnixNano(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &SignedToken{
		Token:     signed,
		TokenType: "Bearer",
		ID:        claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// ValidateToken verifies signature, expiry, issuer and revocation status.
// Every failure wraps ErrUnauthenticated. Revocation lookups fail closed.
func (s *TokenService) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.validate(ctx, token)
	s.observe(err)
	return claims, err
}

func (s *TokenService) validate(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}

	revoked, err := s.revocations.IsRevoked(ctx, claims.ID, claims.Subject, claims.Issued())
	if err != nil {
		s.logger.WithError(err).Error("revocation lookup failed")
		return nil, fmt.Errorf("%w: revocation status unavailable", ErrUnauthenticated)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

func (s *TokenService) parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenMalformed
	}

	parsed, err := s.parser.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrTokenSignatureInvalid
	default:
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.IssuedAt == nil || claims.ID == "" {
		return nil, ErrTokenMalformed
	}
	if _, err := claims.SubjectID(); err != nil {
		return nil, err
	}
	return claims, nil
}

// RefreshToken issues a new token for a currently valid one. The original
// token keeps its own expiry. Sessions older than the refresh TTL, measured
// from the original login, cannot be refreshed.
func (s *TokenService) RefreshToken(ctx context.Context, token string) (*SignedToken, error) {
	claims, err := s.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}

	authTime := claims.IssuedAt.Time
	if claims.AuthTime != nil {
		authTime = claims.AuthTime.Time
	}
	if s.now().Sub(authTime) > s.refreshTTL {
		return nil, ErrRefreshWindowExceeded
	}

	return s.issue(claims.Subject, claims.TenantID, authTime)
}

// Revoke makes token unusable until it expires. Tokens that are malformed,
// invalid, expired or already revoked are ignored.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return nil
	}
	if err := s.revocations.RevokeToken(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return err
	}
	return nil
}

// RevokeSubject invalidates every token of subjectID issued up to now
func (s *TokenService) RevokeSubject(ctx context.Context, subjectID int64) error {
	if subjectID <= 0 {
		return errors.New("subject is required")
	}
	return s.revocations.RevokeSubject(ctx, strconv.FormatInt(subjectID, 10), s.now(), s.accessTTL)
}

func (s *TokenService) observe(err error) {
	if s.metrics == nil {
		return
	}
	outcome := "valid"
	switch {
	case err == nil:
	case errors.Is(err, ErrTokenExpired):
		outcome = "expired"
	case errors.Is(err, ErrTokenSignatureInvalid):
		outcome = "signature_invalid"
	case errors.Is(err, ErrTokenRevoked):
		outcome = "revoked"
	case errors.Is(err, ErrTokenMalformed):
		outcome = "malformed"
	default:
		outcome = "error"
	}
	s.metrics.TokenValidationsTotal.WithLabelValues(outcome).Inc()
}
