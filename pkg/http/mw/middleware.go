// Package mw mounts the endpoints of a relying party, such as login,
// callback and the Host, on one ServeMux with shared middleware.
package mw

import (
	"net/http"
	"slices"
)

// Middleware wraps a handler, for example with request logging.
type Middleware = func(http.Handler) http.Handler

// Chain is a ServeMux which wraps every handler registered on it with
// its middleware. The middleware added first runs outermost.
type Chain struct {
	*http.ServeMux

	middleware []Middleware
}

func New() *Chain {
	return NewWithServeMux(http.NewServeMux())
}

func NewWithServeMux(mux *http.ServeMux) *Chain {
	return &Chain{ServeMux: mux}
}

// Use adds mw to the handlers registered afterwards.
func (c *Chain) Use(mw ...Middleware) {
	c.middleware = append(c.middleware, mw...)
}

// With returns a Chain on the same ServeMux running mw inside the
// middleware of c. c itself is not changed.
func (c *Chain) With(mw ...Middleware) *Chain {
	return &Chain{
		ServeMux:   c.ServeMux,
		middleware: append(slices.Clip(c.middleware), mw...),
	}
}

// Then wraps handler with the middleware without registering it.
func (c *Chain) Then(handler http.Handler) http.Handler {
	for _, mw := range slices.Backward(c.middleware) {
		handler = mw(handler)
	}
	return handler
}

func (c *Chain) Handle(pattern string, handler http.Handler) {
	c.ServeMux.Handle(pattern, c.Then(handler))
}

func (c *Chain) HandleFunc(pattern string, handler http.HandlerFunc) {
	c.Handle(pattern, handler)
}
