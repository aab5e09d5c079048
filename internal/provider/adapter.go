// Package provider defines the adapter contract all upstream backends
// implement and the registry that resolves models to adapter instances.
package provider

import (
	"context"

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/domain"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/stream"
)

// Adapter translates canonical chat requests into one backend's wire format
// and its responses back into canonical events. Vendor types never leak past
// an adapter's boundary.
type Adapter interface {
	Name() string

	// Complete handles unary (non-streaming) requests. Logically it is
	// Stream collapsed to its terminal state, but the failure surfaces are
	// independent.
	Complete(ctx context.Context, req *domain.Request) (*domain.Response, error)

	// Stream returns a channel of canonical events. The channel MUST be
	// closed by the adapter. Exactly one start event is emitted before any
	// upstream I/O completes, then zero or more deltas, then exactly one
	// terminal done or error event.
	Stream(ctx context.Context, req *domain.Request) (<-chan stream.Event, error)

	// IsConfigured reports whether the adapter has the credentials it needs.
	IsConfigured() bool

	// Models lists the model identifiers this adapter serves. Adapters with
	// dynamically-named models (workspace-scoped agents) list their stable
	// entries only.
	Models() []string
}
