package http

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
)

// Reader limits
const (
	MaxLineBytes = 8 * 1024
	MaxHeaders   = 100
	MaxBodyBytes = 10 << 20
)

var (
	// ErrParse is matched by every *ParseError
	ErrParse = errors.New("malformed HTTP request")

	errLineTooLong    = errors.New("line too long")
	errTooManyHeaders = errors.New("too many headers")
	errBodyTooLarge   = errors.New("body too large")
)

// ParseError describes why a request could not be read
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return "parse request: " + e.Reason
	}
	return "parse request: " + e.Reason + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrParse}
	}
	return []error{ErrParse, e.Err}
}

func parseErr(reason string, err error) error {
	return &ParseError{Reason: reason, Err: err}
}

// ReadRequest reads one request from r.
//
// The request line must hold exactly three whitespace separated tokens.
// Header lines without a colon are skipped rather than rejected; the end of
// the stream also ends the header section. When Content-Length is present
// ReadRequest blocks until that many body bytes arrive.
func ReadRequest(r io.Reader) (*Request, error) {
	br := bufio.NewReaderSize(r, MaxLineBytes)

	line, err := readLine(br)
	if err != nil && (err != io.EOF || len(line) == 0) {
		return nil, parseErr("request line", err)
	}

	parts := bytes.Fields(line)
	if len(parts) != 3 {
		return nil, parseErr("request line", errors.New("expected method, path and version"))
	}

	req := &Request{
		Method:  string(parts[0]),
		Path:    string(parts[1]),
		Version: string(parts[2]),
		Headers: make(map[string]string),
	}

	if err := readHeaders(br, req); err != nil {
		return nil, err
	}

	cl, ok := req.Headers[HeaderContentLength]
	if !ok {
		req.Body = []byte{}
		return req, nil
	}

	n, err := strconv.ParseInt(cl, 10, 64)
	if err != nil {
		return nil, parseErr("content length", err)
	}
	if n < 0 {
		return nil, parseErr("content length", errors.New("negative value "+cl))
	}
	if n > MaxBodyBytes {
		return nil, parseErr("content length", errBodyTooLarge)
	}

	req.Body = make([]byte, n)
	if _, err := io.ReadFull(br, req.Body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, parseErr("body", err)
	}

	return req, nil
}

// readHeaders consumes header lines up to and including the blank line
func readHeaders(br *bufio.Reader, req *Request) error {
	count := 0
	for {
		line, err := readLine(br)
		if err != nil && err != io.EOF {
			return parseErr("header", err)
		}

		if len(line) == 0 {
			return nil
		}

		// Every header line counts toward the limit, including skipped ones.
		count++
		if count > MaxHeaders {
			return parseErr("header", errTooManyHeaders)
		}

		colon := bytes.IndexByte(line, ':')
		if colon >= 0 {
			name := string(bytes.TrimSpace(line[:colon]))
			value := string(bytes.TrimSpace(line[colon+1:]))
			req.setHeader(name, value)
		}

		if err == io.EOF {
			return nil
		}
	}
}

// readLine returns the next line without its terminator or trailing blanks.
// A final unterminated line is returned together with io.EOF.
func readLine(br *bufio.Reader) ([]byte, error) {
	line, err := br.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		return nil, errLineTooLong
	}
	line = bytes.TrimRight(line, " \t\r\n")
	return line, err
}
