package audit

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type signerSnapshot struct {
	Name   string `json:"name"`
	APIKey string `json:"api_key"`
	Seats  int    `json:"seats"`
}

func TestFilterSensitiveData(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want map[string]any
	}{
		{
			name: "flat",
			in:   map[string]any{"name": "Alice", "email": "a@x.io", "Password": "hunter2", "api_key": "k"},
			want: map[string]any{"name": "Alice", "email": "a@x.io", "Password": FilteredValue, "api_key": FilteredValue},
		},
		{
			name: "substring match",
			in:   map[string]any{"refresh_token": "t", "user_SSN": "123", "cardholder": "Bob"},
			want: map[string]any{"refresh_token": FilteredValue, "user_SSN": FilteredValue, "cardholder": "Bob"},
		},
		{
			name: "nested maps and slices",
			in: map[string]any{
				"profile": map[string]any{"name": "Alice", "secret_answer": "blue"},
				"cards":   []any{map[string]any{"card_number": "4111", "brand": "visa"}, "plain"},
				"keys":    []map[string]any{{"private_key": "pk", "id": 1}},
			},
			want: map[string]any{
				"profile": map[string]any{"name": "Alice", "secret_answer": FilteredValue},
				"cards":   []any{map[string]any{"card_number": FilteredValue, "brand": "visa"}, "plain"},
				"keys":    []map[string]any{{"private_key": FilteredValue, "id": 1}},
			},
		},
		{
			name: "typed nested values",
			in: map[string]any{
				"credentials": map[string]string{"password": "hunter2", "user": "bob"},
				"tags":        []string{"a", "b"},
				"signer":      signerSnapshot{Name: "Carol", APIKey: "k-1", Seats: 3},
				"ref":         &signerSnapshot{Name: "Dan", APIKey: "k-2"},
				"blob":        []byte("raw"),
			},
			want: map[string]any{
				"credentials": map[string]any{"password": FilteredValue, "user": "bob"},
				"tags":        []any{"a", "b"},
				"signer":      map[string]any{"name": "Carol", "api_key": FilteredValue, "seats": json.Number("3")},
				"ref":         map[string]any{"name": "Dan", "api_key": FilteredValue, "seats": json.Number("0")},
				"blob":        []byte("raw"),
			},
		},
		{name: "nil", in: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterSensitiveData(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, FilterSensitiveData(got), "filtering twice changes nothing")
		})
	}
}

func TestFilterSensitiveData_DoesNotMutateInput(t *testing.T) {
	in := map[string]any{"password": "hunter2", "nested": map[string]any{"token": "t"}}
	FilterSensitiveData(in)

	assert.Equal(t, "hunter2", in["password"])
	assert.Equal(t, "t", in["nested"].(map[string]any)["token"])
}

func TestRedactor_SetPatterns(t *testing.T) {
	r := NewRedactor("IBAN", " ")
	assert.Equal(t, []string{"iban"}, r.Patterns())

	got := r.Filter(map[string]any{"iban": "DE00", "password": "x"})
	assert.Equal(t, FilteredValue, got["iban"])
	assert.Equal(t, "x", got["password"])

	r.SetPatterns(nil)
	assert.Equal(t, DefaultSensitivePatterns, r.Patterns())
}

func TestRedactor_ConcurrentReload(t *testing.T) {
	r := NewRedactor()
	data := map[string]any{"password": "x", "name": "y"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.SetPatterns([]string{"password", "secret"})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				got := r.Filter(data)
				assert.Equal(t, FilteredValue, got["password"])
			}
		}()
	}
	wg.Wait()
}
