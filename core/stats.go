package core

import "github.com/searchktools/pool-server/core/pools"

// ServerStats is a snapshot of engine and pool counters
type ServerStats struct {
	Accepted      uint64
	Rejected      uint64
	Served        uint64
	ParseFailures uint64
	NotFound      uint64
	HandlerErrors uint64
	WriteErrors   uint64
	Pool          pools.WorkerPoolStats
}

// Stats returns the current counters
func (e *Engine) Stats() ServerStats {
	return ServerStats{
		Accepted:      e.stats.accepted.Load(),
		Rejected:      e.stats.rejected.Load(),
		Served:        e.stats.served.Load(),
		ParseFailures: e.stats.parseFailures.Load(),
		NotFound:      e.stats.notFound.Load(),
		HandlerErrors: e.stats.handlerErrors.Load(),
		WriteErrors:   e.stats.writeErrors.Load(),
		Pool:          e.pool.Stats(),
	}
}

// Fields flattens the snapshot into named numeric fields
func (s ServerStats) Fields() map[string]any {
	return map[string]any{
		"accepted":       s.Accepted,
		"rejected":       s.Rejected,
		"served":         s.Served,
		"parse_failures": s.ParseFailures,
		"not_found":      s.NotFound,
		"handler_errors": s.HandlerErrors,
		"write_errors":   s.WriteErrors,
		"pool": map[string]any{
			"workers":   s.Pool.NumWorkers,
			"busy":      s.Pool.BusyWorkers,
			"submitted": s.Pool.TasksSubmitted,
			"completed": s.Pool.TasksCompleted,
			"panicked":  s.Pool.TasksPanicked,
			"pending":   s.Pool.TasksPending,
		},
	}
}
