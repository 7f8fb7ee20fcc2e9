package tenant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/storage"
)

func TestSettingsSchema_Validate(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		want    Settings
		wantErr bool
	}{
		{
			name: "normalizes values",
			raw: map[string]any{
				"timezone":     "Europe/Berlin",
				"max_projects": float64(25),
				"require_mfa":  true,
				"session_ttl":  "90m",
			},
			want: Settings{
				"timezone":     "Europe/Berlin",
				"max_projects": int64(25),
				"require_mfa":  true,
				"session_ttl":  "1h30m0s",
			},
		},
		{name: "empty", raw: nil, want: Settings{}},
		{name: "unknown key", raw: map[string]any{"theme": "dark"}, wantErr: true},
		{name: "wrong kind", raw: map[string]any{"require_mfa": "yes"}, wantErr: true},
		{name: "fractional int", raw: map[string]any{"max_projects": 2.5}, wantErr: true},
		{name: "bad duration", raw: map[string]any{"session_ttl": "forever"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DefaultSettingsSchema.Validate(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSettings)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSettings_Getters(t *testing.T) {
	s := Settings{"locale": "de", "max_projects": float64(3), "require_mfa": false, "session_ttl": "2h"}

	v, ok := s.String("locale")
	assert.True(t, ok)
	assert.Equal(t, "de", v)

	n, ok := s.Int("max_projects")
	assert.True(t, ok)
	assert.Equal(t, int64(3), n)

	b, ok := s.Bool("require_mfa")
	assert.True(t, ok)
	assert.False(t, b)

	d, ok := s.Duration("session_ttl")
	assert.True(t, ok)
	assert.Equal(t, 2*time.Hour, d)

	_, ok = s.String("missing")
	assert.False(t, ok)
}

func TestStore_Lifecycle(t *testing.T) {
	db := storage.OpenTestDB(t)
	store := NewStore(db, nil)
	ctx := context.Background()

	acme := &Tenant{Name: "Acme", Domain: " Acme.example.com ", Settings: Settings{"max_projects": 5}}
	require.NoError(t, store.Create(ctx, acme))
	assert.NotZero(t, acme.ID)
	assert.Equal(t, "acme.example.com", acme.Domain)
	assert.Equal(t, StatusActive, acme.Status)

	err := store.Create(ctx, &Tenant{Name: "Other", Domain: "acme.example.com"})
	assert.ErrorIs(t, err, ErrDuplicateDomain)

	got, err := store.GetByDomain(ctx, "ACME.example.com")
	require.NoError(t, err)
	assert.Equal(t, acme.ID, got.ID)
	n, ok := got.Settings.Int("max_projects")
	assert.True(t, ok)
	assert.Equal(t, int64(5), n)

	settings, err := store.UpdateSettings(ctx, acme.ID, map[string]any{"locale": "fr"})
	require.NoError(t, err)
	assert.Equal(t, Settings{"locale": "fr"}, settings)

	_, err = store.UpdateSettings(ctx, acme.ID, map[string]any{"colour": "red"})
	assert.ErrorIs(t, err, ErrInvalidSettings)

	require.NoError(t, store.Disable(ctx, acme.ID))
	got, err = store.Get(ctx, acme.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive())

	require.NoError(t, store.Enable(ctx, acme.ID))
	got, err = store.Get(ctx, acme.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive())

	require.NoError(t, store.Create(ctx, &Tenant{Name: "Beta", Domain: "beta.example.com"}))
	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = store.Get(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Disable(ctx, 404), ErrNotFound)
}

func TestStore_CreateRequiresNameAndDomain(t *testing.T) {
	store := NewStore(storage.OpenTestDB(t), nil)
	assert.Error(t, store.Create(context.Background(), &Tenant{Name: "x"}))
	assert.Error(t, store.Create(context.Background(), &Tenant{Domain: "x"}))
}

func TestStore_DatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE id").
		WithArgs(int64(1)).
		WillReturnError(errors.New("connection reset"))

	_, err = NewStore(db, nil).Get(context.Background(), 1)
	assert.ErrorContains(t, err, "connection reset")
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
