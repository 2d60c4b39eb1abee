// Package web adapts a loaded handler to the worker's HTTP surface on its
// unix listening socket.
package web

import "context"

// Event is the decoded JSON request body. An empty request body decodes to a
// nil event.
type Event any

// Handler is an invocable function handler
type Handler interface {
	Invoke(ctx context.Context, evt Event) (any, error)
}

// HandlerFunc adapts a plain function to Handler
type HandlerFunc func(ctx context.Context, evt Event) (any, error)

// Invoke calls f
func (f HandlerFunc) Invoke(ctx context.Context, evt Event) (any, error) {
	return f(ctx, evt)
}
