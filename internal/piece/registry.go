package piece

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds all registered pieces.
type Registry struct {
	mu     sync.RWMutex
	pieces map[string]Piece
}

// NewRegistry creates a new empty piece registry.
func NewRegistry() *Registry {
	return &Registry{
		pieces: make(map[string]Piece),
	}
}

// Register adds a piece to the registry.
func (r *Registry) Register(p Piece) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.pieces[name]; exists {
		return fmt.Errorf("piece %q already registered", name)
	}
	r.pieces[name] = p
	return nil
}

// Get returns a piece by name.
func (r *Registry) Get(name string) (Piece, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pieces[name]
	return p, ok
}

// List returns the names of all registered pieces, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.pieces))
	for name := range r.pieces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has checks whether a piece is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.pieces[name]
	return ok
}

// Trigger resolves "piece" + "trigger" to a Trigger.
func (r *Registry) Trigger(pieceName, triggerName string) (Trigger, error) {
	p, ok := r.Get(pieceName)
	if !ok {
		return nil, fmt.Errorf("piece %q not found", pieceName)
	}
	t, ok := FindTrigger(p, triggerName)
	if !ok {
		return nil, fmt.Errorf("piece %q has no trigger %q", pieceName, triggerName)
	}
	return t, nil
}
