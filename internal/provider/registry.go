package provider

import (
	"fmt"
)

// Registry holds the configured backends in registration order. It is built
// once at start-up and passed to whoever needs it.
type Registry struct {
	order  []Provider
	byName map[string]Provider
}

// NewRegistry registers providers in the given order.
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{byName: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends p. Names must be unique.
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return fmt.Errorf("register provider: nil provider")
	}
	if _, exists := r.byName[p.Name()]; exists {
		return fmt.Errorf("provider already registered: %s", p.Name())
	}
	r.byName[p.Name()] = p
	r.order = append(r.order, p)
	return nil
}

// Get looks up a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// List returns the providers in registration order.
func (r *Registry) List() []Provider {
	out := make([]Provider, len(r.order))
	copy(out, r.order)
	return out
}

// Names returns provider names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.order))
	for _, p := range r.order {
		out = append(out, p.Name())
	}
	return out
}

// Keys carries one credential per backend.
type Keys struct {
	Gemini   string
	Groq     string
	XAI      string
	Cerebras string
}

// NewDefaultRegistry wires the four supported backends in their fallback order.
func NewDefaultRegistry(keys Keys, opts ...Option) *Registry {
	r, _ := NewRegistry(
		NewGemini(keys.Gemini),
		NewGroq(keys.Groq, opts...),
		NewGrok(keys.XAI, opts...),
		NewCerebras(keys.Cerebras, opts...),
	)
	return r
}
