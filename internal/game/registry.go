package game

import (
	"fmt"
	"sync"
)

// Factory constructs a fresh Game instance. Each call must return a new
// value so scratch fields on an implementation cannot leak between
// concurrent sessions.
type Factory func() Game

// Registry maps game-type identifiers to factories.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under the given game type.
// Registering the same type twice is a wiring mistake and fails.
func (r *Registry) Register(gameType string, f Factory) error {
	if f == nil {
		return fmt.Errorf("nil factory for game type %q", gameType)
	}
	if gameType == "" {
		return fmt.Errorf("game type cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[gameType]; exists {
		return fmt.Errorf("game type %q already registered", gameType)
	}
	r.factories[gameType] = f
	return nil
}

// Create returns a fresh instance of the named game, or nil if the type
// is unknown. Unknown types are an expected outcome the caller checks,
// not an error.
func (r *Registry) Create(gameType string) Game {
	r.mu.RLock()
	f, ok := r.factories[gameType]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return f()
}

// Types returns all registered game-type identifiers.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	return types
}

// Count returns the number of registered game types.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}
