package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/gosuda/agentd/internal/events"
	"github.com/gosuda/agentd/internal/llm"
)

// ErrUnknownAgent is returned when a requested agent class is not registered.
var ErrUnknownAgent = errors.New("agent: unknown agent class") //nolint:gochecknoglobals // sentinel error

// Strategy drives the reasoning steps of one agent. Step reads the session's
// event history and produces the next event; returning a finish action ends
// the run.
type Strategy interface {
	// Name returns the agent class name.
	Name() string

	// Step produces the next agent event given the full event history.
	Step(ctx context.Context, history []events.Event) (events.Event, error)
}

// Factory creates a Strategy bound to an LLM client.
type Factory func(client *llm.Client) (Strategy, error)

// Registry maps agent class names to strategy factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a strategy factory for an agent class.
func (r *Registry) Register(agentClass string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[agentClass] = factory
}

// Create instantiates a strategy for the given agent class.
func (r *Registry) Create(agentClass string, client *llm.Client) (Strategy, error) {
	r.mu.RLock()
	factory, ok := r.factories[agentClass]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("agent.Registry.Create(%q): %w", agentClass, ErrUnknownAgent)
	}

	strategy, err := factory(client)
	if err != nil {
		return nil, fmt.Errorf("agent.Registry.Create(%q): %w", agentClass, err)
	}

	return strategy, nil
}

// Available returns registered agent class names in sorted order.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := slices.Collect(func(yield func(string) bool) {
		for name := range r.factories {
			if !yield(name) {
				return
			}
		}
	})
	sort.Strings(names)

	return names
}
