// Package tool holds the registry of callable tools and the executor that
// runs batches of model-requested tool calls.
package tool

import (
	"context"
	"sort"
	"sync"

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/domain"
)

// Definition describes one callable tool: its contract toward the model and
// its implementation.
type Definition struct {
	Name        string
	Description string
	// InputSchema is a JSON Schema object validating the call arguments.
	InputSchema map[string]any
	Execute     func(ctx context.Context, args map[string]any) (*domain.ToolResult, error)
}

// Registry is a constructible tool table; there is no package-global
// registry, the set of tools is wired explicitly at startup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Definition)}
}

// Register installs a tool, replacing any previous definition of the same
// name.
func (r *Registry) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[def.Name] = def
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.tools))
	for _, def := range r.tools {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Definitions renders the registry as provider-facing tool definitions.
func (r *Registry) Definitions() []domain.ToolDefinition {
	defs := r.List()
	out := make([]domain.ToolDefinition, 0, len(defs))
	for _, def := range defs {
		out = append(out, domain.ToolDefinition{
			Type: "function",
			Function: domain.FunctionDef{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.InputSchema,
			},
		})
	}
	return out
}
