// Package humastar bridges Huma (REST/OpenAPI) with Datastar (SSE).
//
// It provides:
//   - SSE: Huma streaming to the Datastar SSE protocol via [Stream] and [NewSSE]
//   - Hypermedia: RFC 8288 Link headers via [LinkTransformer], [Pager] and [Actor]
//
// Usage:
//
//	func (h *MapHandler) Stream(ctx context.Context, in *SessionInput) (*huma.StreamResponse, error) {
//	    return humastar.Stream(func(sse humastar.SSE) {
//	        sse.Event("map-command", cmd)
//	    }), nil
//	}
package humastar

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/starfederation/datastar-go/datastar"
)

// Stream returns a Huma StreamResponse that calls fn with a ready SSE helper.
func Stream(fn func(sse SSE)) *huma.StreamResponse {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			fn(NewSSE(humaCtx))
		},
	}
}

// SSE wraps a Datastar SSE generator with the patterns the map pages use.
type SSE struct {
	*datastar.ServerSentEventGenerator
	ctx context.Context
}

// NewSSE creates a Datastar SSE helper from a Huma streaming context.
func NewSSE(ctx huma.Context) SSE {
	r, w := humago.Unwrap(ctx)
	return SSE{ServerSentEventGenerator: datastar.NewSSE(w, r), ctx: r.Context()}
}

// Context is done when the client disconnects.
func (s SSE) Context() context.Context {
	return s.ctx
}

// Event dispatches a browser CustomEvent carrying payload as its detail.
func (s SSE) Event(name string, payload any) {
	s.DispatchCustomEvent(name, payload)
}

// EmptyInput is a shared input struct for handlers with no parameters.
type EmptyInput struct{}
