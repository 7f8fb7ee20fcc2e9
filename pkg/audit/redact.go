package audit

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"sync"
)

// FilteredValue replaces redacted values
const FilteredValue = "[FILTERED]"

// DefaultSensitivePatterns are matched case-insensitively as substrings of keys
var DefaultSensitivePatterns = []string{
	"password",
	"passwd",
	"api_key",
	"apikey",
	"secret",
	"credit_card",
	"card_number",
	"cvv",
	"token",
	"private_key",
	"ssn",
}

// Redactor removes sensitive values from snapshots. Its pattern list can be
// swapped while in use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []string
}

// NewRedactor creates a redactor. No patterns means the defaults.
func NewRedactor(patterns ...string) *Redactor {
	r := &Redactor{}
	r.SetPatterns(patterns)
	return r
}

// SetPatterns replaces the pattern list. An empty list restores the defaults.
func (r *Redactor) SetPatterns(patterns []string) {
	normalized := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			normalized = append(normalized, p)
		}
	}
	if len(normalized) == 0 {
		normalized = append(normalized, DefaultSensitivePatterns...)
	}

	r.mu.Lock()
	r.patterns = normalized
	r.mu.Unlock()
}

// Patterns returns a copy of the active patterns
func (r *Redactor) Patterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.patterns...)
}

// Filter returns a copy of data with sensitive values replaced. Nested maps,
// slices and structs are walked. Filtering an already filtered map changes nothing.
func (r *Redactor) Filter(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	r.mu.RLock()
	patterns := r.patterns
	r.mu.RUnlock()
	return filterMap(data, patterns)
}

func isSensitive(key string, patterns []string) bool {
	key = strings.ToLower(key)
	for _, p := range patterns {
		if strings.Contains(key, p) {
			return true
		}
	}
	return false
}

func filterMap(data map[string]any, patterns []string) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if isSensitive(k, patterns) {
			out[k] = FilteredValue
			continue
		}
		out[k] = filterValue(v, patterns)
	}
	return out
}

func filterValue(v any, patterns []string) any {
	switch val := v.(type) {
	case map[string]any:
		return filterMap(val, patterns)
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = filterValue(item, patterns)
		}
		return items
	case []map[string]any:
		items := make([]map[string]any, len(val))
		for i, item := range val {
			items[i] = filterMap(item, patterns)
		}
		return items
	default:
		if normalized, ok := normalize(v); ok {
			return filterValue(normalized, patterns)
		}
		return v
	}
}

// normalize turns typed composites (map[string]string, []string, structs)
// into the generic shapes filterValue walks, using their JSON encoding since
// that is what gets stored.
func normalize(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Struct, reflect.Array:
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil, false
		}
	default:
		return nil, false
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, false
	}
	switch out.(type) {
	case map[string]any, []any:
		return out, true
	}
	return nil, false
}

var defaultRedactor = NewRedactor()

// FilterSensitiveData redacts data with the default patterns
func FilterSensitiveData(data map[string]any) map[string]any {
	return defaultRedactor.Filter(data)
}
