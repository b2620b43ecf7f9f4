package agent

import (
	"fmt"
	"sort"
	"sync"

	"todoagent/internal/agent/tools"
)

// Adapter parameterizes the loop for one use case. The loop itself never
// changes between adapters.
type Adapter interface {
	Name() string
	SystemPrompt() string
	// Tools carries both the schema sent to the model and the handlers.
	Tools() *tools.Registry
	IsGreeting(msg string) bool
	GreetingReply() string
	// FormatResponse shapes the final reply; text may be empty when the
	// model said nothing after running tools.
	FormatResponse(text string, calls []ToolCallRecord) string
}

// AdapterRegistry maps agent.adapter config values to adapters.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewAdapterRegistry(adapters ...Adapter) (*AdapterRegistry, error) {
	r := &AdapterRegistry{adapters: map[string]Adapter{}}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *AdapterRegistry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[a.Name()]; ok {
		return fmt.Errorf("adapter %q already registered", a.Name())
	}
	r.adapters[a.Name()] = a
	return nil
}

func (r *AdapterRegistry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("unknown adapter %q (have %v)", name, r.namesLocked())
	}
	return a, nil
}

func (r *AdapterRegistry) namesLocked() []string {
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
