package http

import (
	"errors"
	"io"
	"maps"
	nethttp "net/http"
	"slices"
	"strconv"

	"golang.org/x/net/http/httpguts"

	"github.com/searchktools/pool-server/core/pools"
)

// DefaultVersion is written when a Response leaves Version empty
const DefaultVersion = "HTTP/1.1"

// ErrWrite is matched by every *WriteError
var ErrWrite = errors.New("write response")

// WriteError wraps an I/O failure while sending a response
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return "write response: " + e.Err.Error() }

func (e *WriteError) Unwrap() []error { return []error{ErrWrite, e.Err} }

// Response is a complete HTTP response.
//
// No header is added implicitly: a producer that wants Content-Length sets it.
type Response struct {
	Version    string
	StatusCode int
	Reason     string
	Headers    map[string]string
	Body       []byte
}

// NewResponse builds a response with the standard reason phrase for code
func NewResponse(code int, body []byte) *Response {
	return &Response{
		Version:    DefaultVersion,
		StatusCode: code,
		Reason:     nethttp.StatusText(code),
		Headers:    make(map[string]string),
		Body:       body,
	}
}

// OK builds a 200 response carrying body
func OK(body string) *Response {
	return NewResponse(nethttp.StatusOK, []byte(body))
}

// BadRequest is the fixed reply to a request that could not be parsed
func BadRequest() *Response {
	return &Response{Version: DefaultVersion, StatusCode: nethttp.StatusBadRequest, Reason: "Bad Request", Body: []byte("400 Bad Request")}
}

// NotFound is the fixed reply when no route matches
func NotFound() *Response {
	return &Response{Version: DefaultVersion, StatusCode: nethttp.StatusNotFound, Reason: "Not Found", Body: []byte("404 Not Found")}
}

// InternalServerError is the fixed reply when a handler fails.
// It never carries the failure detail.
func InternalServerError() *Response {
	return &Response{Version: DefaultVersion, StatusCode: nethttp.StatusInternalServerError, Reason: "Internal Server Error"}
}

// SetHeader sets a header, replacing any previous value
func (r *Response) SetHeader(name, value string) *Response {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[name] = value
	return r
}

// WithContentLength sets Content-Length to the current body size
func (r *Response) WithContentLength() *Response {
	return r.SetHeader(HeaderContentLength, strconv.Itoa(len(r.Body)))
}

// AppendTo serializes the response onto b.
//
// Headers are written in name order. A header whose name or value would
// break the framing (CR, LF, invalid token) is left out.
func (r *Response) AppendTo(b []byte) []byte {
	version := r.Version
	if version == "" {
		version = DefaultVersion
	}

	b = append(b, version...)
	b = append(b, ' ')
	b = strconv.AppendInt(b, int64(r.StatusCode), 10)
	b = append(b, ' ')
	b = append(b, r.Reason...)
	b = append(b, "\r\n"...)

	for _, name := range slices.Sorted(maps.Keys(r.Headers)) {
		value := r.Headers[name]
		if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
			continue
		}
		b = append(b, name...)
		b = append(b, ": "...)
		b = append(b, value...)
		b = append(b, "\r\n"...)
	}

	b = append(b, "\r\n"...)
	return append(b, r.Body...)
}

// WriteTo writes the serialized response to w in a single call.
// A failure is returned as *WriteError and is not retried.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	buf := pools.AcquireBuffer(r.estimatedSize())
	defer pools.ReleaseBuffer(buf)

	*buf = r.AppendTo(*buf)
	n, err := w.Write(*buf)
	if err != nil {
		return int64(n), &WriteError{Err: err}
	}
	return int64(n), nil
}

func (r *Response) estimatedSize() int {
	size := len(r.Version) + len(r.Reason) + 16 + len(r.Body)
	for k, v := range r.Headers {
		size += len(k) + len(v) + 4
	}
	return size
}
