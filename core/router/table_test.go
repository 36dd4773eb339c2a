package router

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/searchktools/pool-server/core/http"
)

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func okHandler(body string) Handler {
	return func(*http.Request) (*http.Response, error) {
		return http.OK(body), nil
	}
}

func TestTable_Dispatch(t *testing.T) {
	table := New([]Route{
		{Method: "GET", Path: "/hello", Handler: okHandler("hello")},
		{Method: "POST", Path: "/hello", Handler: okHandler("posted")},
	}, quiet())

	resp, outcome := table.Route(&http.Request{Method: "GET", Path: "/hello"})
	assert.Equal(t, HandlerOK, outcome)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, []byte("hello"), resp.Body)

	resp = table.Dispatch(&http.Request{Method: "POST", Path: "/hello"})
	assert.Equal(t, []byte("posted"), resp.Body)
}

func TestTable_ExactCaseSensitiveMatch(t *testing.T) {
	table := New([]Route{{Method: "GET", Path: "/hello", Handler: okHandler("x")}}, quiet())

	for _, req := range []*http.Request{
		{Method: "get", Path: "/hello"},
		{Method: "GET", Path: "/Hello"},
		{Method: "GET", Path: "/hello/"},
		{Method: "GET", Path: "/hello?x=1"},
	} {
		_, outcome := table.Route(req)
		assert.Equal(t, NoMatch, outcome, "%s %s", req.Method, req.Path)
	}
}

func TestTable_NoMatchSkipsHandlers(t *testing.T) {
	touched := false
	spy := func(*http.Request) (*http.Response, error) {
		touched = true
		return http.OK(""), nil
	}
	table := New([]Route{
		{Method: "GET", Path: "/nope", Handler: spy},
		{Method: "POST", Path: "/yes", Handler: spy},
	}, quiet())

	resp, outcome := table.Route(&http.Request{Method: "POST", Path: "/nope"})
	assert.Equal(t, NoMatch, outcome)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "Not Found", resp.Reason)
	assert.False(t, touched)
}

func TestTable_HandlerErrorIsHidden(t *testing.T) {
	secret := "db password is hunter2"
	table := New([]Route{{
		Method: "GET",
		Path:   "/fail",
		Handler: func(*http.Request) (*http.Response, error) {
			return nil, errors.New(secret)
		},
	}}, quiet())

	resp, outcome := table.Route(&http.Request{Method: "GET", Path: "/fail"})
	assert.Equal(t, HandlerErr, outcome)
	assert.Equal(t, 500, resp.StatusCode)
	assert.NotContains(t, string(resp.AppendTo(nil)), secret)
}

func TestTable_NilResponseIsHandlerError(t *testing.T) {
	table := New([]Route{{
		Method:  "GET",
		Path:    "/nil",
		Handler: func(*http.Request) (*http.Response, error) { return nil, nil },
	}}, quiet())

	resp, outcome := table.Route(&http.Request{Method: "GET", Path: "/nil"})
	assert.Equal(t, HandlerErr, outcome)
	assert.Equal(t, 500, resp.StatusCode)
}

func TestTable_LaterRouteWins(t *testing.T) {
	table := New([]Route{
		{Method: "GET", Path: "/", Handler: okHandler("first")},
		{Method: "GET", Path: "/", Handler: okHandler("second")},
		{Method: "GET", Path: "/skip", Handler: nil},
	}, quiet())

	assert.Equal(t, 1, table.Len())
	assert.Equal(t, []byte("second"), table.Dispatch(&http.Request{Method: "GET", Path: "/"}).Body)
	_, ok := table.Lookup("GET", "/skip")
	assert.False(t, ok)
}

func TestTable_MiddlewareOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(req *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next(req)
			}
		}
	}

	table := New([]Route{{Method: "GET", Path: "/", Handler: okHandler("")}},
		quiet(), WithMiddleware(tag("outer"), tag("inner")))

	table.Dispatch(&http.Request{Method: "GET", Path: "/"})
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestTable_Routes(t *testing.T) {
	table := New([]Route{
		{Method: "POST", Path: "/b", Handler: okHandler("")},
		{Method: "GET", Path: "/a", Handler: okHandler("")},
	}, quiet())
	assert.Equal(t, []string{"GET /a", "POST /b"}, table.Routes())
}

func TestTable_ConcurrentLookup(t *testing.T) {
	table := New([]Route{{Method: "GET", Path: "/hello", Handler: okHandler("hi")}}, quiet())

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				resp := table.Dispatch(&http.Request{Method: "GET", Path: "/hello"})
				assert.Equal(t, 200, resp.StatusCode)
			}
		}()
	}
	wg.Wait()
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "handler_ok", HandlerOK.String())
	assert.Equal(t, "handler_err", HandlerErr.String())
	assert.Equal(t, "no_match", NoMatch.String())
	assert.Equal(t, "outcome(7)", Outcome(7).String())
}
