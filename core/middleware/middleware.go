// Package middleware holds handler decorators applied when the route table is built.
package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/searchktools/pool-server/core/http"
	"github.com/searchktools/pool-server/core/router"
)

// Chain composes middlewares into one, first argument outermost
func Chain(mws ...router.Middleware) router.Middleware {
	return func(next router.Handler) router.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Recovery turns a handler panic into an error, so the router answers 500
// and the worker never sees the panic.
func Recovery(logger *slog.Logger) router.Middleware {
	return func(next router.Handler) router.Handler {
		return func(req *http.Request) (resp *http.Response, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("handler panicked",
						slog.String("method", req.Method),
						slog.String("path", req.Path),
						slog.Any("panic", r),
						slog.String("stack", string(debug.Stack())),
					)
					resp, err = nil, fmt.Errorf("panic in handler %s %s: %v", req.Method, req.Path, r)
				}
			}()
			return next(req)
		}
	}
}

// Logger logs every handled request at debug level
func Logger(logger *slog.Logger) router.Middleware {
	return func(next router.Handler) router.Handler {
		return func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next(req)

			attrs := []any{
				slog.String("method", req.Method),
				slog.String("path", req.Path),
				slog.Duration("duration", time.Since(start)),
			}
			if resp != nil {
				attrs = append(attrs, slog.Int("status", resp.StatusCode))
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}
			logger.Debug("request handled", attrs...)

			return resp, err
		}
	}
}
