package auth

import (
	"errors"
	"fmt"
)

// Authentication failures. Callers surface all of them as the same generic
// "authentication failed" response.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrRateLimited        = errors.New("too many failed attempts")
)

// ErrUnauthenticated is wrapped by every token failure
var ErrUnauthenticated = errors.New("unauthenticated")

// Token failures. The distinction is for logs and metrics only.
var (
	ErrTokenMalformed        = fmt.Errorf("%w: malformed token", ErrUnauthenticated)
	ErrTokenExpired          = fmt.Errorf("%w: token expired", ErrUnauthenticated)
	ErrTokenSignatureInvalid = fmt.Errorf("%w: invalid token signature", ErrUnauthenticated)
	ErrTokenRevoked          = fmt.Errorf("%w: token revoked", ErrUnauthenticated)
	ErrRefreshWindowExceeded = fmt.Errorf("%w: session can no longer be refreshed", ErrUnauthenticated)
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrDuplicateUser = errors.New("user already exists")
)

// IsAuthFailure reports whether err should be answered with "authentication failed"
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrAccountLocked)
}
