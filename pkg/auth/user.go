package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/tenantguard/pkg/storage"
)

// User is an authenticatable subject. A nil TenantID marks a
// system-global subject.
type User struct {
	ID             int64      `json:"id"`
	TenantID       *int64     `json:"tenant_id,omitempty"`
	Email          string     `json:"email"`
	Name           string     `json:"name,omitempty"`
	PasswordHash   string     `json:"-"`
	Active         bool       `json:"active"`
	FailedAttempts int        `json:"-"`
	LockedUntil    *time.Time `json:"-"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsSystem reports whether the user has no home tenant
func (u *User) IsSystem() bool {
	return u.TenantID == nil
}

// IsLocked reports whether the lockout is in effect at now
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// Credentials is a login attempt
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// IP is the client address, used for per-IP failure limiting
	IP string `json:"-"`
}

// NormalizeEmail lower-cases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserStore persists users and their lockout state
type UserStore struct {
	db   *sql.DB
	cost int
	now  func() time.Time
}

// UserStoreOption configures a UserStore
type UserStoreOption func(*UserStore)

// WithHashCost sets the bcrypt cost of new password hashes
func WithHashCost(cost int) UserStoreOption {
	return func(s *UserStore) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.cost = cost
		}
	}
}

// NewUserStore creates a new user store
func NewUserStore(db *sql.DB, opts ...UserStoreOption) *UserStore {
	s := &UserStore{
		db:   db,
		cost: bcrypt.DefaultCost,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const userColumns = `id, tenant_id, email, name, password_hash, active, failed_attempts,
	locked_until, last_login_at, created_at, updated_at`

// Create hashes password and inserts u
func (s *UserStore) Create(ctx context.Context, u *User, password string) error {
	hash, err := hashPasswordCost(password, s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	u.Email = NormalizeEmail(u.Email)
	u.PasswordHash = hash
	u.Active = true
	u.CreatedAt = now
	u.UpdatedAt = now

	query := `
		INSERT INTO users (tenant_id, email, name, password_hash, active, failed_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query, u.TenantID, u.Email, u.Name, u.PasswordHash, u.Active, now, now).Scan(&u.ID)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return fmt.Errorf("%s: %w", u.Email, ErrDuplicateUser)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID returns the user with id
func (s *UserStore) GetByID(ctx context.Context, id int64) (*User, error) {
	return s.get(ctx, "id = $1", id)
}

// GetByEmail returns the user with email
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.get(ctx, "email = $1", NormalizeEmail(email))
}

func (s *UserStore) get(ctx context.Context, where string, arg any) (*User, error) {
	var u User
	var tenantID sql.NullInt64
	var lockedUntil, lastLogin sql.NullTime

	err := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg).Scan(
		&u.ID, &tenantID, &u.Email, &u.Name, &u.PasswordHash, &u.Active, &u.FailedAttempts,
		&lockedUntil, &lastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if tenantID.Valid {
		id := tenantID.Int64
		u.TenantID = &id
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		u.LockedUntil = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

// RecordFailure counts a failed password attempt. Reaching maxAttempts locks
// the account for lockFor and resets the counter; the return value reports
// whether this failure triggered the lock.
func (s *UserStore) RecordFailure(ctx context.Context, id int64, maxAttempts int, lockFor time.Duration) (bool, error) {
	now := s.now()

	var attempts int
	err := s.db.QueryRowContext(ctx, `
		UPDATE users SET failed_attempts = failed_attempts + 1, updated_at = $1
		WHERE id = $2
		RETURNING failed_attempts
	`, now, id).Scan(&attempts)
	if err != nil {
		return false, fmt.Errorf("failed to record login failure: %w", err)
	}

	if maxAttempts <= 0 || attempts < maxAttempts {
		return false, nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE users SET failed_attempts = 0, locked_until = $1, updated_at = $2
		WHERE id = $3
	`, now.Add(lockFor), now, id)
	if err != nil {
		return false, fmt.Errorf("failed to lock user: %w", err)
	}
	return true, nil
}

// RecordSuccess clears lockout state and stamps the login time
func (s *UserStore) RecordSuccess(ctx context.Context, id int64) (time.Time, error) {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET failed_attempts = 0, locked_until = NULL, last_login_at = $1, updated_at = $2
		WHERE id = $3
	`, now, now, id)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to record login: %w", err)
	}
	return now, nil
}

// Deactivate disables a user without deleting it
func (s *UserStore) Deactivate(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET active = $1, updated_at = $2 WHERE id = $3`, false, s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetPassword replaces the user's password hash
func (s *UserStore) SetPassword(ctx context.Context, id int64, password string) error {
	hash, err := hashPasswordCost(password, s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`, hash, s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}
