package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// RateLimitConfig defines a fixed-window limit
type RateLimitConfig struct {
	// Limit is the number of units allowed per window
	Limit int
	// Window is the length of one window
	Window time.Duration
}

// DefaultRateLimitConfig returns the default API limit
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Limit: 600, Window: time.Minute}
}

// LoginFailureConfig returns the default login failure budget
func LoginFailureConfig() RateLimitConfig {
	return RateLimitConfig{Limit: 10, Window: 15 * time.Minute}
}

// Limiter counts units per key. Allow consumes one unit and reports whether
// the key was still within its limit.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Remaining(ctx context.Context, key string) (int, error)
	Reset(ctx context.Context, key string) error
	Config() RateLimitConfig
}

var (
	_ auth.FailureLimiter = (*MemoryRateLimiter)(nil)
	_ auth.FailureLimiter = (*RedisRateLimiter)(nil)
)

// MemoryRateLimiter keeps windows in process memory. Limits are per instance.
type MemoryRateLimiter struct {
	config  RateLimitConfig
	now     func() time.Time
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count int
	start time.Time
}

// NewMemoryRateLimiter creates an in-memory limiter
func NewMemoryRateLimiter(config RateLimitConfig) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		config:  config,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// Config returns the limit
func (rl *MemoryRateLimiter) Config() RateLimitConfig {
	return rl.config
}

// current returns the live window of key, starting a new one if needed.
// Callers hold rl.mu.
func (rl *MemoryRateLimiter) current(key string, create bool) *window {
	now := rl.now()
	w, ok := rl.windows[key]
	if ok && now.Sub(w.start) < rl.config.Window {
		return w
	}
	if !create {
		delete(rl.windows, key)
		return nil
	}
	w = &window{start: now}
	rl.windows[key] = w
	return w
}

// Allow implements Limiter
func (rl *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w := rl.current(key, true)
	w.count++
	return w.count <= rl.config.Limit, nil
}

// Remaining implements Limiter
func (rl *MemoryRateLimiter) Remaining(_ context.Context, key string) (int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w := rl.current(key, false)
	if w == nil {
		return rl.config.Limit, nil
	}
	return max(rl.config.Limit-w.count, 0), nil
}

// Reset implements Limiter
func (rl *MemoryRateLimiter) Reset(_ context.Context, key string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.windows, key)
	return nil
}

// Cleanup removes expired windows
func (rl *MemoryRateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, w := range rl.windows {
		if now.Sub(w.start) >= rl.config.Window {
			delete(rl.windows, key)
		}
	}
}

// StartCleanup removes expired windows every window until ctx is done
func (rl *MemoryRateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.Window)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// KeyFunc derives the rate limit key of a request
type KeyFunc func(r *http.Request) string

// KeyByPrincipalOrIP limits authenticated callers per subject and everyone
// else per client address
func KeyByPrincipalOrIP(r *http.Request) string {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		return fmt.Sprintf("user:%d", p.ID())
	}
	return "ip:" + ClientIP(r)
}

// RateLimit rejects requests over the limiter's budget with 429. Limiter
// errors let the request through.
func RateLimit(limiter Limiter, keyFn KeyFunc, logger *observability.Logger) func(http.Handler) http.Handler {
	logger = observability.OrNop(logger)
	if keyFn == nil {
		keyFn = KeyByPrincipalOrIP
	}
	config := limiter.Config()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)

			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.WithError(err).WithField("key", key).Warn("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.Limit))
			if !allowed {
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", strconv.Itoa(int(config.Window.Seconds())))
				httputil.WriteTooManyRequests(w, httputil.MsgTooManyRequests)
				return
			}

			if remaining, err := limiter.Remaining(r.Context(), key); err == nil {
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			}
			next.ServeHTTP(w, r)
		})
	}
}
