package router

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/searchktools/pool-server/core/http"
)

var errNilResponse = errors.New("handler returned no response")

// Handler produces the response for a request, or fails
type Handler func(req *http.Request) (*http.Response, error)

// Middleware decorates a Handler. Middleware is applied once, when the table is built.
type Middleware func(Handler) Handler

// Route binds an exact method and path to a handler
type Route struct {
	Method  string
	Path    string
	Handler Handler
}

// Outcome tells how Route resolved a request
type Outcome int

const (
	// HandlerOK means the handler returned a response
	HandlerOK Outcome = iota
	// HandlerErr means the handler failed and a 500 was produced
	HandlerErr
	// NoMatch means no route key matched and a 404 was produced
	NoMatch
)

func (o Outcome) String() string {
	switch o {
	case HandlerOK:
		return "handler_ok"
	case HandlerErr:
		return "handler_err"
	case NoMatch:
		return "no_match"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Table is the method+path dispatch table.
//
// A Table is immutable once New returns: there is no way to add or remove
// routes afterwards. Workers share one *Table and look routes up
// concurrently without locking.
type Table struct {
	routes map[string]Handler
	logger *slog.Logger
}

// Option configures a Table
type Option func(*tableOptions)

type tableOptions struct {
	middleware []Middleware
	logger     *slog.Logger
}

// WithMiddleware wraps every handler, first argument outermost
func WithMiddleware(mws ...Middleware) Option {
	return func(o *tableOptions) { o.middleware = append(o.middleware, mws...) }
}

// WithLogger sets the logger used to report handler failures
func WithLogger(l *slog.Logger) Option {
	return func(o *tableOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// Key builds the lookup key for method and path
func Key(method, path string) string {
	return method + " " + path
}

// New builds a table from routes. When two routes share a key the later one wins.
func New(routes []Route, opts ...Option) *Table {
	o := tableOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	t := &Table{
		routes: make(map[string]Handler, len(routes)),
		logger: o.logger,
	}

	for _, r := range routes {
		if r.Handler == nil {
			continue
		}
		h := r.Handler
		for i := len(o.middleware) - 1; i >= 0; i-- {
			h = o.middleware[i](h)
		}
		t.routes[Key(r.Method, r.Path)] = h
	}

	return t
}

// Lookup returns the handler registered for the exact method and path
func (t *Table) Lookup(method, path string) (Handler, bool) {
	h, ok := t.routes[Key(method, path)]
	return h, ok
}

// Len returns the number of registered routes
func (t *Table) Len() int { return len(t.routes) }

// Routes returns the registered keys in sorted order
func (t *Table) Routes() []string {
	return slices.Sorted(maps.Keys(t.routes))
}

// Dispatch resolves req to the response that should go on the wire
func (t *Table) Dispatch(req *http.Request) *http.Response {
	resp, _ := t.Route(req)
	return resp
}

// Route resolves req and reports which branch produced the response.
// A missing key yields 404 without running any handler; a failing handler
// yields a 500 whose body says nothing about the failure.
func (t *Table) Route(req *http.Request) (*http.Response, Outcome) {
	key := Key(req.Method, req.Path)

	h, ok := t.routes[key]
	if !ok {
		return http.NotFound(), NoMatch
	}

	resp, err := h(req)
	if err == nil && resp == nil {
		err = errNilResponse
	}
	if err != nil {
		t.logger.Error("error handling request",
			slog.String("route", key),
			slog.Any("error", err),
		)
		return http.InternalServerError(), HandlerErr
	}

	return resp, HandlerOK
}
