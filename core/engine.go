package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/searchktools/pool-server/core/http"
	"github.com/searchktools/pool-server/core/pools"
	"github.com/searchktools/pool-server/core/router"
)

// Accept retry backoff bounds
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Lingering close bounds: after the response, unread request bytes are
// drained for at most this long and this much before the socket closes.
const (
	drainTimeout  = 500 * time.Millisecond
	maxDrainBytes = 256 << 10
)

// StateHook observes connection state transitions. It runs on the worker
// that owns the connection, so it must be safe for concurrent use.
type StateHook func(id uuid.UUID, state ConnState)

// Connection is one accepted connection, owned by a single worker until it closes
type Connection struct {
	id    uuid.UUID
	conn  net.Conn
	state ConnState
}

// Engine accepts connections and runs each one as a job on the worker pool:
// read one request, dispatch it, write one response, close.
type Engine struct {
	table  *router.Table
	pool   *pools.WorkerPool
	logger *slog.Logger
	hook   StateHook

	acceptLog rate.Sometimes

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	closing   atomic.Bool

	stats struct {
		accepted      atomic.Uint64
		rejected      atomic.Uint64
		served        atomic.Uint64
		parseFailures atomic.Uint64
		notFound      atomic.Uint64
		handlerErrors atomic.Uint64
		writeErrors   atomic.Uint64
	}
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithLogger sets the engine logger
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithStateHook installs a connection state observer
func WithStateHook(h StateHook) EngineOption {
	return func(e *Engine) { e.hook = h }
}

// NewEngine creates an engine that routes through table and runs connections on pool.
// The table is shared by reference with every worker and never copied.
func NewEngine(table *router.Table, pool *pools.WorkerPool, opts ...EngineOption) *Engine {
	e := &Engine{
		table:     table,
		pool:      pool,
		logger:    slog.Default(),
		acceptLog: rate.Sometimes{First: 3, Interval: 10 * time.Second},
		listeners: make(map[net.Listener]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ListenAndServe listens on the TCP address addr and calls Serve
func (e *Engine) ListenAndServe(addr string) error {
	if e.closing.Load() {
		return ErrServerClosed
	}

	ln, err := listen(addr)
	if err != nil {
		return err
	}
	return e.Serve(ln)
}

// Serve accepts connections on ln and submits one job per connection.
// Submission blocks while every worker is busy. Serve always returns a
// non-nil error; after Shutdown it is ErrServerClosed.
func (e *Engine) Serve(ln net.Listener) error {
	if !e.trackListener(ln) {
		ln.Close()
		return ErrServerClosed
	}
	defer e.untrackListener(ln)

	e.logger.Info("listening",
		slog.String("addr", ln.Addr().String()),
		slog.Int("workers", e.pool.Size()),
		slog.Int("routes", e.table.Len()),
	)

	var delay time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if e.closing.Load() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}

			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay = min(delay*2, maxAcceptDelay)
			}
			e.acceptLog.Do(func() {
				e.logger.Warn("accept error; retrying",
					slog.String("error", err.Error()),
					slog.Duration("delay", delay),
				)
			})
			time.Sleep(delay)
			continue
		}
		delay = 0

		e.stats.accepted.Add(1)

		c := &Connection{id: uuid.New(), conn: nc}
		e.transition(c, StateAccepted)

		if err := e.pool.Submit(pools.JobFunc(func() { e.serveConn(c) })); err != nil {
			e.stats.rejected.Add(1)
			e.logger.Warn("connection rejected",
				slog.String("conn", c.id.String()),
				slog.String("error", err.Error()),
			)
			nc.Close()
			e.transition(c, StateClosed)
			if errors.Is(err, pools.ErrPoolClosed) {
				return ErrServerClosed
			}
		}
	}
}

// serveConn drives one connection from Reading to Closed
func (e *Engine) serveConn(c *Connection) {
	defer e.closeConn(c)

	log := e.logger.With(
		slog.String("conn", c.id.String()),
		slog.String("remote", c.conn.RemoteAddr().String()),
	)

	e.transition(c, StateReading)
	req, err := http.ReadRequest(c.conn)

	var resp *http.Response
	if err != nil {
		e.transition(c, StateParseFailed)
		e.stats.parseFailures.Add(1)
		log.Warn("error parsing request", slog.String("error", err.Error()))
		resp = http.BadRequest()
	} else {
		e.transition(c, StateParsed)
		e.transition(c, StateDispatching)

		var outcome router.Outcome
		resp, outcome = e.table.Route(req)
		switch outcome {
		case router.HandlerOK:
			e.transition(c, StateHandlerOK)
		case router.HandlerErr:
			e.stats.handlerErrors.Add(1)
			e.transition(c, StateHandlerErr)
		case router.NoMatch:
			e.stats.notFound.Add(1)
			e.transition(c, StateNoMatch)
		}

		log.Debug("request dispatched",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.String("outcome", outcome.String()),
			slog.Int("status", resp.StatusCode),
		)
	}

	e.transition(c, StateWriting)
	if _, err := resp.WriteTo(c.conn); err != nil {
		e.stats.writeErrors.Add(1)
		log.Warn("error writing response", slog.String("error", err.Error()))
		return
	}
	e.stats.served.Add(1)
}

// closeConn half-closes the connection and drains what the client is still
// sending before the final close. Closing a socket with unread input makes
// the kernel send RST, which can destroy the response before the client reads it.
func (e *Engine) closeConn(c *Connection) {
	defer e.transition(c, StateClosed)
	defer c.conn.Close()

	tc, ok := c.conn.(*net.TCPConn)
	if !ok || tc.CloseWrite() != nil {
		return
	}
	if err := tc.SetReadDeadline(time.Now().Add(drainTimeout)); err != nil {
		return
	}
	_, _ = io.CopyN(io.Discard, tc, maxDrainBytes)
}

// listen opens a TCP listener with the platform socket options applied
func listen(addr string) (net.Listener, error) {
	lc := net.ListenConfig{Control: controlListener}
	return lc.Listen(context.Background(), "tcp", addr)
}

func (e *Engine) transition(c *Connection, s ConnState) {
	c.state = s
	if e.hook != nil {
		e.hook(c.id, s)
	}
}

// Shutdown stops accepting connections and waits for every accepted
// connection to be served. If ctx ends first Shutdown returns ctx.Err();
// workers keep running in the background until their jobs finish.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.closing.Store(true)

	e.mu.Lock()
	for ln := range e.listeners {
		ln.Close()
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.pool.Shutdown()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("server stopped", slog.Uint64("served", e.stats.served.Load()))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) trackListener(ln net.Listener) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closing.Load() {
		return false
	}
	e.listeners[ln] = struct{}{}
	return true
}

func (e *Engine) untrackListener(ln net.Listener) {
	e.mu.Lock()
	delete(e.listeners, ln)
	e.mu.Unlock()
}
