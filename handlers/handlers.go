// Package handlers contains the built-in route handlers served by the example binary.
package handlers

import (
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/searchktools/pool-server/core"
	"github.com/searchktools/pool-server/core/http"
	"github.com/searchktools/pool-server/core/router"
)

// ServerName is sent in the Server header of built-in responses
const ServerName = "pool-server"

// StatsSource provides the counters rendered by Stats
type StatsSource interface {
	Stats() core.ServerStats
}

// StatsFunc adapts a function to StatsSource
type StatsFunc func() core.ServerStats

// Stats calls f()
func (f StatsFunc) Stats() core.ServerStats { return f() }

func text(body string) *http.Response {
	return http.OK(body).
		SetHeader(http.HeaderContentType, "text/plain").
		SetHeader(http.HeaderConnection, "close").
		SetHeader(http.HeaderServer, ServerName).
		WithContentLength()
}

// Greeting answers GET /hello
func Greeting(*http.Request) (*http.Response, error) {
	return text("Hello, World!"), nil
}

// LongQuery simulates a slow backend call: the worker stays busy for d.
func LongQuery(d time.Duration) router.Handler {
	return func(*http.Request) (*http.Response, error) {
		time.Sleep(d)
		return text("Hello, World! After a long query."), nil
	}
}

// Echo returns the request body unchanged
func Echo(req *http.Request) (*http.Response, error) {
	contentType := req.Header(http.HeaderContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return http.NewResponse(200, req.Body).
		SetHeader(http.HeaderContentType, contentType).
		SetHeader(http.HeaderConnection, "close").
		SetHeader(http.HeaderServer, ServerName).
		WithContentLength(), nil
}

// Stats renders the server counters as JSON
func Stats(src StatsSource) router.Handler {
	return func(*http.Request) (*http.Response, error) {
		msg, err := structpb.NewStruct(src.Stats().Fields())
		if err != nil {
			return nil, err
		}
		body, err := protojson.MarshalOptions{Indent: "  "}.Marshal(msg)
		if err != nil {
			return nil, err
		}
		return http.NewResponse(200, body).
			SetHeader(http.HeaderContentType, "application/json").
			SetHeader(http.HeaderConnection, "close").
			SetHeader(http.HeaderServer, ServerName).
			WithContentLength(), nil
	}
}

// Routes returns the default route set
func Routes(longQueryDelay time.Duration, stats StatsSource) []router.Route {
	routes := []router.Route{
		{Method: "GET", Path: "/hello", Handler: Greeting},
		{Method: "GET", Path: "/long-query", Handler: LongQuery(longQueryDelay)},
		{Method: "POST", Path: "/echo", Handler: Echo},
	}
	if stats != nil {
		routes = append(routes, router.Route{Method: "GET", Path: "/stats", Handler: Stats(stats)})
	}
	return routes
}
