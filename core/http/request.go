package http

// Header names the reader and built-in handlers look at
const (
	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"
	HeaderHost          = "Host"
	HeaderConnection    = "Connection"
	HeaderServer        = "Server"
)

// Request is one parsed HTTP request.
//
// Header names are case-sensitive; a repeated name keeps the last value.
// Body always holds exactly Content-Length bytes, or nothing when the header
// is absent.
type Request struct {
	Method  string
	Path    string
	Version string
	Host    string
	Headers map[string]string
	Body    []byte
}

// Header returns the value of the named header, or "" when absent
func (r *Request) Header(name string) string {
	return r.Headers[name]
}

// setHeader stores a header, tracking Host alongside the map
func (r *Request) setHeader(name, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[name] = value
	if name == HeaderHost {
		r.Host = value
	}
}
