package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/tenant"
)

// FailureLimiter counts failed logins per key. Allow consumes one unit and
// reports whether the key was still within its budget.
type FailureLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Remaining(ctx context.Context, key string) (int, error)
	Reset(ctx context.Context, key string) error
}

// TenantLookup resolves a subject's home tenant
type TenantLookup interface {
	Get(ctx context.Context, id int64) (*tenant.Tenant, error)
}

// LockoutPolicy locks an account for Duration after MaxAttempts consecutive failures.
// A zero MaxAttempts disables lockout.
type LockoutPolicy struct {
	MaxAttempts int
	Duration    time.Duration
}

// DefaultLockoutPolicy returns the default lockout settings
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: 5, Duration: 15 * time.Minute}
}

// AuthenticatorOption configures an Authenticator
type AuthenticatorOption func(*Authenticator)

// WithLockoutPolicy overrides the lockout policy
func WithLockoutPolicy(policy LockoutPolicy) AuthenticatorOption {
	return func(a *Authenticator) { a.lockout = policy }
}

// WithFailureLimiter enables per-email and per-IP failure limiting
func WithFailureLimiter(limiter FailureLimiter) AuthenticatorOption {
	return func(a *Authenticator) { a.limiter = limiter }
}

// WithTenantLookup rejects subjects whose tenant is disabled
func WithTenantLookup(tenants TenantLookup) AuthenticatorOption {
	return func(a *Authenticator) { a.tenants = tenants }
}

// WithAuthLogger sets the logger
func WithAuthLogger(logger *observability.Logger) AuthenticatorOption {
	return func(a *Authenticator) { a.logger = logger }
}

// WithAuthMetrics enables attempt counters
func WithAuthMetrics(metrics *observability.Metrics) AuthenticatorOption {
	return func(a *Authenticator) { a.metrics = metrics }
}

// Authenticator verifies credentials
type Authenticator struct {
	users   *UserStore
	tokens  *TokenService
	tenants TenantLookup
	limiter FailureLimiter
	lockout LockoutPolicy
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewAuthenticator creates an authenticator over users, issuing tokens with tokens
func NewAuthenticator(users *UserStore, tokens *TokenService, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		users:   users,
		tokens:  tokens,
		lockout: DefaultLockoutPolicy(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = observability.OrNop(a.logger)
	return a
}

// Authenticate verifies creds and returns the subject. Unknown identities,
// wrong passwords, inactive users and disabled tenants all yield
// ErrInvalidCredentials.
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials) (*User, error) {
	user, err := a.authenticate(ctx, creds)
	a.observe(err)
	return user, err
}

func (a *Authenticator) authenticate(ctx context.Context, creds Credentials) (*User, error) {
	email := NormalizeEmail(creds.Email)
	keys := limiterKeys(email, creds.IP)
	logger := a.logger.WithField("ip", creds.IP)

	if err := a.checkLimiter(ctx, keys); err != nil {
		return nil, err
	}

	if email == "" || creds.Password == "" {
		a.recordLimiterFailure(ctx, keys)
		return nil, ErrInvalidCredentials
	}

	user, err := a.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		burnCompare(creds.Password)
		a.recordLimiterFailure(ctx, keys)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	logger = logger.WithField("subject_id", user.ID)

	if user.IsLocked(a.users.now()) {
		a.recordLimiterFailure(ctx, keys)
		logger.Info("login rejected: account locked")
		return nil, ErrAccountLocked
	}

	if err := VerifyPassword(user.PasswordHash, creds.Password); err != nil {
		a.recordLimiterFailure(ctx, keys)
		locked, lockErr := a.users.RecordFailure(ctx, user.ID, a.lockout.MaxAttempts, a.lockout.Duration)
		if lockErr != nil {
			logger.WithError(lockErr).Error("failed to record login failure")
		}
		if locked {
			logger.Warn("account locked after repeated login failures")
			return nil, ErrAccountLocked
		}
		return nil, ErrInvalidCredentials
	}

	if !user.Active {
		logger.Info("login rejected: user inactive")
		return nil, ErrInvalidCredentials
	}

	if user.TenantID != nil && a.tenants != nil {
		t, err := a.tenants.Get(ctx, *user.TenantID)
		if err != nil && !errors.Is(err, tenant.ErrNotFound) {
			return nil, fmt.Errorf("failed to load tenant: %w", err)
		}
		if t == nil || !t.IsActive() {
			logger.Info("login rejected: tenant disabled")
			return nil, ErrInvalidCredentials
		}
	}

	loginAt, err := a.users.RecordSuccess(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.LastLoginAt = &loginAt
	user.FailedAttempts = 0
	user.LockedUntil = nil

	if a.limiter != nil {
		if err := a.limiter.Reset(ctx, keys[0]); err != nil {
			logger.WithError(err).Warn("failed to reset login limiter")
		}
	}
	return user, nil
}

// Login authenticates creds and issues a token
func (a *Authenticator) Login(ctx context.Context, creds Credentials) (*User, *SignedToken, error) {
	user, err := a.Authenticate(ctx, creds)
	if err != nil {
		return nil, nil, err
	}
	token, err := a.tokens.IssueToken(user)
	if err != nil {
		return nil, nil, err
	}
	return user, token, nil
}

func limiterKeys(email, ip string) []string {
	keys := []string{"email:" + email}
	if ip != "" {
		keys = append(keys, "ip:"+ip)
	}
	return keys
}

func (a *Authenticator) checkLimiter(ctx context.Context, keys []string) error {
	if a.limiter == nil {
		return nil
	}
	for _, key := range keys {
		remaining, err := a.limiter.Remaining(ctx, key)
		if err != nil {
			// an unavailable limiter doesn't block logins; lockout still applies
			a.logger.WithError(err).Warn("login limiter unavailable")
			return nil
		}
		if remaining <= 0 {
			return ErrRateLimited
		}
	}
	return nil
}

func (a *Authenticator) recordLimiterFailure(ctx context.Context, keys []string) {
	if a.limiter == nil {
		return
	}
	for _, key := range keys {
		if _, err := a.limiter.Allow(ctx, key); err != nil {
			a.logger.WithError(err).Warn("failed to record login failure in limiter")
		}
	}
}

func (a *Authenticator) observe(err error) {
	if a.metrics == nil {
		return
	}
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidCredentials):
		outcome = "invalid"
	case errors.Is(err, ErrAccountLocked):
		outcome = "locked"
	case errors.Is(err, ErrRateLimited):
		outcome = "rate_limited"
	default:
		outcome = "error"
	}
	a.metrics.AuthAttemptsTotal.WithLabelValues(outcome).Inc()
}
