package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// RevocationStore remembers revoked token ids and per-subject cutoffs.
// Entries only need to outlive the tokens they reject.
type RevocationStore interface {
	// RevokeToken rejects the token with id jti until expiresAt
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	// RevokeSubject rejects every token of subject issued at or before cutoff,
	// compared at nanosecond precision. The cutoff is kept for ttl.
	RevokeSubject(ctx context.Context, subject string, cutoff time.Time, ttl time.Duration) error
	// IsRevoked reports whether a token with jti, subject and issuedAt was revoked
	IsRevoked(ctx context.Context, jti, subject string, issuedAt time.Time) (bool, error)
}

// RedisRevocationStore keeps revocations in Redis so they are shared by all instances
type RedisRevocationStore struct {
	redis  *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRevocationStore creates a Redis-backed revocation store
func NewRedisRevocationStore(client *redis.Client, prefix string) *RedisRevocationStore {
	if prefix == "" {
		prefix = "revoked"
	}
	return &RedisRevocationStore{
		redis:  client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *RedisRevocationStore) jtiKey(jti string) string {
	return fmt.Sprintf("%s:jti:%s", s.prefix, jti)
}

func (s *RedisRevocationStore) subjectKey(subject string) string {
	return fmt.Sprintf("%s:sub:%s", s.prefix, subject)
}

// RevokeToken implements RevocationStore
func (s *RedisRevocationStore) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, s.jtiKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// RevokeSubject implements RevocationStore
func (s *RedisRevocationStore) RevokeSubject(ctx context.Context, subject string, cutoff time.Time, ttl time.Duration) error {
	err := s.redis.Set(ctx, s.subjectKey(subject), strconv.FormatInt(cutoff.UnixNano(), 10), ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to revoke subject: %w", err)
	}
	return nil
}

// IsRevoked implements RevocationStore
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, jti, subject string, issuedAt time.Time) (bool, error) {
	pipe := s.redis.Pipeline()
	exists := pipe.Exists(ctx, s.jtiKey(jti))
	cutoff := pipe.Get(ctx, s.subjectKey(subject))

	// redis.Nil from the GET is reported through Exec as well
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}

	if exists.Val() > 0 {
		return true, nil
	}

	nanos, err := cutoff.Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read subject cutoff: %w", err)
	}
	return issuedAt.UnixNano() <= nanos, nil
}

// MemoryRevocationStore keeps revocations in process memory. It suits single
// instance deployments and tests.
type MemoryRevocationStore struct {
	tokens   *lru.LRU[string, struct{}]
	subjects *lru.LRU[string, int64]
}

// NewMemoryRevocationStore creates a store whose entries live for ttl, which
// should be at least the access token lifetime
func NewMemoryRevocationStore(ttl time.Duration) *MemoryRevocationStore {
	return &MemoryRevocationStore{
		tokens:   lru.NewLRU[string, struct{}](0, nil, ttl),
		subjects: lru.NewLRU[string, int64](0, nil, ttl),
	}
}

// RevokeToken implements RevocationStore
func (s *MemoryRevocationStore) RevokeToken(_ context.Context, jti string, _ time.Time) error {
	s.tokens.Add(jti, struct{}{})
	return nil
}

// RevokeSubject implements RevocationStore
func (s *MemoryRevocationStore) RevokeSubject(_ context.Context, subject string, cutoff time.Time, _ time.Duration) error {
	s.subjects.Add(subject, cutoff.UnixNano())
	return nil
}

// IsRevoked implements RevocationStore
func (s *MemoryRevocationStore) IsRevoked(_ context.Context, jti, subject string, issuedAt time.Time) (bool, error) {
	if s.tokens.Contains(jti) {
		return true, nil
	}
	if cutoff, ok := s.subjects.Get(subject); ok && issuedAt.UnixNano() <= cutoff {
		return true, nil
	}
	return false, nil
}
