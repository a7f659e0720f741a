// Package strategy defines the Strategy interface for trading strategies and
// provides a Registry for building them by name.
package strategy

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"tradelab/internal/domain"
	"tradelab/internal/portfolio"
)

// ErrUnknownStrategy is returned when a strategy name is not registered.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Strategy is the interface that all trading strategies must implement.
//
// Strategies are stateful across calls within a run and must reset that
// state in OnStart so one instance can be reused for another run. They may
// read the portfolio state they are given but express trading intent only
// through the orders they return.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// OnStart is called once before the first bar. Returned orders stay
	// pending until a bar for their symbol arrives.
	OnStart(state *portfolio.State) []domain.Order

	// OnBar is called for every bar after that bar's pending orders have
	// been executed. It returns zero or more orders.
	OnBar(bar domain.Bar, state *portfolio.State) []domain.Order

	// OnFinish is called once after the last bar, for reporting only.
	OnFinish(state *portfolio.State)
}

// Factory builds a fresh strategy from loosely typed parameters, usually
// decoded from configuration or an API request.
type Factory func(params map[string]any) (Strategy, error)

// Registry holds a named collection of strategy factories for lookup and
// enumeration.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under name, replacing any previous registration.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Get retrieves a factory by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// New builds a new instance of the named strategy.
func (r *Registry) New(name string, params map[string]any) (Strategy, error) {
	f, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	s, err := f(params)
	if err != nil {
		return nil, fmt.Errorf("building strategy %q: %w", name, err)
	}
	return s, nil
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
