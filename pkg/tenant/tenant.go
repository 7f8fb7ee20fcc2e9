package tenant

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// Status is the lifecycle state of a tenant
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

// Tenant is the isolation boundary that owns all tenant-aware data.
// Tenants are never deleted, only disabled.
type Tenant struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	Settings  Settings  `json:"settings,omitempty"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether subjects of the tenant may operate
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}

// ErrInvalidSettings is returned when settings don't match the schema
var ErrInvalidSettings = errors.New("invalid tenant settings")

// Kind is the type of a settings value
type Kind string

const (
	KindString   Kind = "string"
	KindInt      Kind = "int"
	KindBool     Kind = "bool"
	KindDuration Kind = "duration"
)

// SettingsSchema declares the allowed keys and their kinds
type SettingsSchema map[string]Kind

// DefaultSettingsSchema is the schema applied by the tenant store
var DefaultSettingsSchema = SettingsSchema{
	"timezone":     KindString,
	"locale":       KindString,
	"max_projects": KindInt,
	"require_mfa":  KindBool,
	"session_ttl":  KindDuration,
}

// Settings is a validated key/value map. Values are normalized to
// string, int64, bool, or a duration string.
type Settings map[string]any

// Validate checks raw against the schema and returns normalized settings
func (s SettingsSchema) Validate(raw map[string]any) (Settings, error) {
	out := make(Settings, len(raw))
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		kind, ok := s[key]
		if !ok {
			return nil, fmt.Errorf("%w: unknown key %q", ErrInvalidSettings, key)
		}
		v, err := normalize(kind, raw[key])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSettings, key, err)
		}
		out[key] = v
	}
	return out, nil
}

func normalize(kind Kind, value any) (any, error) {
	switch kind {
	case KindString:
		if v, ok := value.(string); ok {
			return v, nil
		}
	case KindBool:
		if v, ok := value.(bool); ok {
			return v, nil
		}
	case KindInt:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			// JSON numbers decode as float64
			if v == math.Trunc(v) && !math.IsInf(v, 0) {
				return int64(v), nil
			}
		}
	case KindDuration:
		switch v := value.(type) {
		case time.Duration:
			return v.String(), nil
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, err
			}
			return d.String(), nil
		}
	default:
		return nil, fmt.Errorf("unsupported kind %q", kind)
	}
	return nil, fmt.Errorf("expected %s, got %T", kind, value)
}

// String returns a string setting
func (s Settings) String(key string) (string, bool) {
	v, ok := s[key].(string)
	return v, ok
}

// Int returns an integer setting
func (s Settings) Int(key string) (int64, bool) {
	switch v := s[key].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// Bool returns a boolean setting
func (s Settings) Bool(key string) (bool, bool) {
	v, ok := s[key].(bool)
	return v, ok
}

// Duration returns a duration setting
func (s Settings) Duration(key string) (time.Duration, bool) {
	raw, ok := s[key].(string)
	if !ok {
		return 0, false
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false
	}
	return d, true
}
