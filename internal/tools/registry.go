// Package tools defines the procurement tool surface the model can call
// and the executor that validates, authorizes, and runs those calls.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/quartermasterhq/quartermaster/internal/llm"
)

// Tool is one callable capability advertised to the model.
//
// Execute receives the raw argument object after schema validation; userID
// is empty for unauthenticated turns, which the executor rejects before
// Execute when RequiresAuth is true.
type Tool interface {
	Name() string
	Description() string

	// Schema returns the JSON Schema for the argument object. The same
	// document is advertised to the model and enforced by the executor.
	Schema() json.RawMessage

	// RequiresAuth reports whether the tool needs an authenticated user.
	RequiresAuth() bool

	Execute(ctx context.Context, userID string, args json.RawMessage) (any, error)
}

// Registry holds the registered tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Duplicate names are a programming error.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// MustRegister registers tools and panics on duplicates. Used at startup.
func (r *Registry) MustRegister(ts ...Tool) {
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Specs returns the advertised tool specs in stable name order.
func (r *Registry) Specs() []llm.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]llm.ToolSpec, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		specs = append(specs, llm.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return specs
}
