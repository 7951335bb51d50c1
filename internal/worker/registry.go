package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pulsemetric/pulse/internal/queue"
)

// Handler executes one task. The context carries the task's transaction and
// the per-task deadline; the returned output is stored as the task result.
type Handler func(ctx context.Context, t *queue.Task) (any, error)

// Registry maps task names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a task name. Registering the same name twice
// panics; that is always a wiring mistake.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("worker: handler already registered for task %q", name))
	}
	r.handlers[name] = h
}

// Lookup returns the handler for a task name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered task names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
