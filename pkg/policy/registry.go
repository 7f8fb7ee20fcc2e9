package policy

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateRule is returned when a pair is registered twice
var ErrDuplicateRule = errors.New("rule already registered")

type ruleKey struct {
	entityType string
	action     string
}

// Registry maps (entityType, action) to a Rule. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	rules map[ruleKey]Rule
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{rules: make(map[ruleKey]Rule)}
}

// Register adds a rule
func (r *Registry) Register(entityType, action string, rule Rule) error {
	if entityType == "" || action == "" || rule == nil {
		return errors.New("entity type, action and rule are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := ruleKey{entityType, action}
	if _, exists := r.rules[key]; exists {
		return fmt.Errorf("%s.%s: %w", entityType, action, ErrDuplicateRule)
	}
	r.rules[key] = rule
	return nil
}

// MustRegister is Register that panics, for package init
func (r *Registry) MustRegister(entityType, action string, rule Rule) {
	if err := r.Register(entityType, action, rule); err != nil {
		panic(err)
	}
}

// Lookup returns the rule for a pair
func (r *Registry) Lookup(entityType, action string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[ruleKey{entityType, action}]
	return rule, ok
}
