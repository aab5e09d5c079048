package provider

import (
	"sort"
	"strings"
	"sync"

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/domain"
)

// modelProviders is the static model→provider table consulted first during
// resolution.
var modelProviders = map[string]string{
	"gpt-4o":                    "openai",
	"gpt-4o-mini":               "openai",
	"o1-mini":                   "openai",
	"claude-sonnet-4-20250514":  "anthropic",
	"claude-3-5-haiku-20241022": "anthropic",
	"glean-assistant":           "glean",
	"cmdbot":                    "cmdbot",
}

// modelPrefixes resolves dynamically-named models (workspace-scoped agent
// ids, future model snapshots) that are absent from the static table.
// Order matters: earlier entries win.
var modelPrefixes = []struct {
	prefix   string
	provider string
}{
	{"assistant/", "assistant"},
	{"gpt-", "openai"},
	{"o1-", "openai"},
	{"o3-", "openai"},
	{"claude-", "anthropic"},
	{"glean-", "glean"},
}

// ProviderForModel returns the provider name serving a model id, or "" when
// no provider matches.
func ProviderForModel(model string) string {
	if p, ok := modelProviders[model]; ok {
		return p
	}
	for _, entry := range modelPrefixes {
		if strings.HasPrefix(model, entry.prefix) {
			return entry.provider
		}
	}
	return ""
}

// Factory constructs one adapter instance for a provider.
type Factory func() Adapter

// Registry resolves model identifiers to adapter instances. Adapters are
// instantiated lazily and cached per provider name: one instance serves all
// models of that provider. The registry is an explicit object with a
// controlled lifetime, created at process start and passed to the pieces
// that need it.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	adapters  map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		adapters:  make(map[string]Adapter),
	}
}

// Register installs a factory for a provider name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Resolve returns the adapter serving the given model id. It signals
// ProviderNotFound when no provider matches the model; a provider whose
// adapter rejects the specific model signals ModelNotFound from inside the
// adapter instead.
func (r *Registry) Resolve(model string) (Adapter, error) {
	name := ProviderForModel(model)
	if name == "" {
		return nil, domain.ErrProviderNotFound(model)
	}
	return r.Provider(name)
}

// Provider returns the cached adapter for a provider name, instantiating it
// on first use.
func (r *Registry) Provider(name string) (Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.adapters[name]; ok {
		return a, nil
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, &domain.GatewayError{
			Kind:    domain.ErrorKindProviderNotFound,
			Message: "unknown provider " + name,
		}
	}
	a := f()
	r.adapters[name] = a
	return a, nil
}

// ResolveRequest resolves the adapter for a request, honoring an explicit
// provider choice over model-based resolution.
func (r *Registry) ResolveRequest(req *domain.Request) (Adapter, error) {
	if req.Provider != "" {
		return r.Provider(req.Provider)
	}
	return r.Resolve(req.Model)
}

// Models returns the sorted union of all statically-known model ids.
func (r *Registry) Models() []string {
	out := make([]string, 0, len(modelProviders))
	for m := range modelProviders {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
