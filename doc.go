/*
Package poolserver is a small concurrent HTTP/1.1 server built on a fixed
pool of worker goroutines.

Every accepted TCP connection becomes one job on the pool. The worker that
receives it reads a single request, dispatches it through an immutable
method+path route table, writes one response and closes the connection.
The number of connections served at once never exceeds the pool size.

Quick Start

	package main

	import (
	    "context"
	    "os"

	    "github.com/searchktools/pool-server/app"
	    "github.com/searchktools/pool-server/config"
	)

	func main() {
	    cfg, err := config.Load(os.Args[1:])
	    if err != nil {
	        os.Exit(2)
	    }
	    application, err := app.New(cfg, nil)
	    if err != nil {
	        os.Exit(1)
	    }
	    _ = application.Run(context.Background())
	}

Modules

  - app: wiring and lifecycle (signals, graceful shutdown)
  - config: defaults, JSON file, POOLSERVER_* environment and flags
  - core: accept loop and per-connection state machine
  - core/http: request reader and response writer
  - core/router: route table and dispatch
  - core/middleware: handler middleware (recovery, logging)
  - core/pools: worker pool and buffer pool
  - handlers: built-in routes (/hello, /long-query, /echo, /stats)
*/
package poolserver
