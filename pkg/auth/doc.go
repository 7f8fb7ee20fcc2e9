// Package auth establishes who is calling.
//
// # Overview
//
// Users log in with email and password. Passwords are bcrypt hashes; an
// unknown email still costs one bcrypt comparison so response time does not
// reveal which accounts exist. Every failed attempt is counted per account
// and, when a FailureLimiter is configured, per email and per client IP.
//
//	authn := auth.NewAuthenticator(users, tokens,
//		auth.WithTenantLookup(tenants),
//		auth.WithFailureLimiter(limiter),
//	)
//	user, token, err := authn.Login(ctx, auth.Credentials{Email: e, Password: pw, IP: ip})
//
// Unknown emails, wrong passwords, inactive users and disabled tenants all
// return ErrInvalidCredentials.
//
// # Tokens
//
// Session tokens are HS256 JWTs carrying the subject, the subject's tenant
// (tid, absent for system-global subjects), a unique id (jti) and the
// original login time (auth_time). TokenService validates signature, issuer,
// expiry and revocation status. Every validation failure wraps
// ErrUnauthenticated.
//
// RefreshToken issues a fresh token for a valid one without touching the
// original's expiry. Refresh is refused once the session is older than the
// refresh TTL, measured from auth_time.
//
// # Revocation
//
// Revoke blacklists one jti until it would have expired; RevokeSubject
// rejects every token a subject received up to now. RedisRevocationStore
// shares revocations across instances. MemoryRevocationStore is the default
// for single instance deployments. A revocation store that cannot be reached
// makes validation fail.
package auth
