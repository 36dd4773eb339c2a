package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/searchktools/pool-server/config"
	"github.com/searchktools/pool-server/core"
	"github.com/searchktools/pool-server/core/middleware"
	"github.com/searchktools/pool-server/core/pools"
	"github.com/searchktools/pool-server/core/router"
	"github.com/searchktools/pool-server/handlers"
)

// ShutdownTimeout bounds how long Run waits for in-flight connections
const ShutdownTimeout = 30 * time.Second

// App is the application instance: worker pool, route table and engine
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	engine *core.Engine
}

// NewLogger builds the process logger: JSON in production, text otherwise
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level, err := cfg.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Production() {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// New creates an application instance with the built-in routes.
// It fails only when the pool cannot be built from cfg.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = NewLogger(cfg, os.Stderr)
	}

	pool, err := pools.NewWorkerPool(cfg.PoolSize,
		pools.WithQueueSize(cfg.QueueSize),
		pools.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: logger}

	// The stats route reads the engine built below; no request can arrive before then.
	stats := handlers.StatsFunc(func() core.ServerStats { return a.engine.Stats() })

	table := router.New(handlers.Routes(cfg.LongQueryDelay, stats),
		router.WithLogger(logger),
		router.WithMiddleware(middleware.Recovery(logger), middleware.Logger(logger)),
	)

	a.engine = core.NewEngine(table, pool, core.WithLogger(logger))

	logger.Info("thread pool created",
		slog.Int("workers", pool.Size()),
		slog.Int("queue_size", cfg.QueueSize),
		slog.Any("routes", table.Routes()),
	)
	return a, nil
}

// Engine returns the underlying engine
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Run listens on the configured address and serves until ctx ends or the
// process receives SIGINT or SIGTERM, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("server starting",
		slog.String("addr", a.cfg.Addr()),
		slog.String("env", a.cfg.Env),
	)
	return a.run(ctx, func() error { return a.engine.ListenAndServe(a.cfg.Addr()) })
}

// Serve is Run on an existing listener
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	return a.run(ctx, func() error { return a.engine.Serve(ln) })
}

func (a *App) run(ctx context.Context, serve func() error) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := serve()
		if errors.Is(err, core.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return a.engine.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
