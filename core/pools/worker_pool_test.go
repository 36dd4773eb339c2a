package pools

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPool(t *testing.T, size int, opts ...Option) *WorkerPool {
	t.Helper()
	pool, err := NewWorkerPool(size, append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	return pool
}

func TestWorkerPool_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1, -100} {
		pool, err := NewWorkerPool(size)
		assert.Nil(t, pool)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidPoolSize)

		var cfgErr *ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, size, cfgErr.Size)
	}
}

func TestWorkerPool_ExactlyOnce(t *testing.T) {
	cases := []struct {
		workers int
		jobs    int
		queue   int
	}{
		{1, 1, 0},
		{1, 50, 0},
		{4, 3, 0},
		{4, 1000, 0},
		{8, 5000, 64},
	}

	for _, tc := range cases {
		pool := newTestPool(t, tc.workers, WithQueueSize(tc.queue))

		runs := make([]atomic.Int32, tc.jobs)
		for i := 0; i < tc.jobs; i++ {
			i := i
			require.NoError(t, pool.SubmitFunc(func() {
				runs[i].Add(1)
			}))
		}

		pool.Shutdown()

		for i := range runs {
			assert.Equal(t, int32(1), runs[i].Load(), "job %d (workers=%d jobs=%d)", i, tc.workers, tc.jobs)
		}

		stats := pool.Stats()
		assert.Equal(t, uint64(tc.jobs), stats.TasksSubmitted)
		assert.Equal(t, uint64(tc.jobs), stats.TasksCompleted)
		assert.Zero(t, stats.TasksPending)
	}
}

func TestWorkerPool_ShutdownWaitsForAcceptedJobs(t *testing.T) {
	pool := newTestPool(t, 2, WithQueueSize(16))

	var finished atomic.Int64
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.SubmitFunc(func() {
			time.Sleep(10 * time.Millisecond)
			finished.Add(1)
		}))
	}

	pool.Shutdown()
	assert.Equal(t, int64(10), finished.Load())
}

func TestWorkerPool_ShutdownIsNotPreemptive(t *testing.T) {
	pool := newTestPool(t, 1)

	started := make(chan struct{})
	release := make(chan struct{})
	var done atomic.Bool
	require.NoError(t, pool.SubmitFunc(func() {
		close(started)
		<-release
		done.Store(true)
	}))
	<-started

	shutdownReturned := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(shutdownReturned)
	}()

	select {
	case <-shutdownReturned:
		t.Fatal("Shutdown returned while a job was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-shutdownReturned:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return")
	}
	assert.True(t, done.Load())
}

func TestWorkerPool_SubmitAfterShutdown(t *testing.T) {
	pool := newTestPool(t, 3)
	pool.Shutdown()
	assert.True(t, pool.Closed())

	errCh := make(chan error, 1)
	go func() {
		errCh <- pool.SubmitFunc(func() { t.Error("job ran after shutdown") })
	}()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrPoolClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Submit blocked after shutdown")
	}

	// Idempotent
	pool.Shutdown()
}

func TestWorkerPool_ShutdownReleasesBlockedSubmit(t *testing.T) {
	pool := newTestPool(t, 1)

	release := make(chan struct{})
	require.NoError(t, pool.SubmitFunc(func() { <-release }))

	// The only worker is busy and there is no buffer, so this send waits.
	parked := make(chan error, 1)
	go func() {
		parked <- pool.SubmitFunc(func() { t.Error("parked job ran after shutdown") })
	}()
	time.Sleep(20 * time.Millisecond)

	shutdownDone := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(shutdownDone)
	}()
	require.Eventually(t, pool.Closed, time.Second, time.Millisecond)

	late := make(chan error, 1)
	go func() {
		late <- pool.SubmitFunc(func() { t.Error("late job ran after shutdown") })
	}()

	// Neither Submit may wait for the running job.
	for _, ch := range []chan error{parked, late} {
		select {
		case err := <-ch:
			assert.ErrorIs(t, err, ErrPoolClosed)
		case <-time.After(time.Second):
			t.Fatal("Submit blocked after Shutdown began")
		}
	}

	close(release)

	select {
	case <-shutdownDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return")
	}
	assert.Equal(t, uint64(1), pool.Stats().TasksSubmitted)
}

func TestWorkerPool_NilJob(t *testing.T) {
	pool := newTestPool(t, 1)
	defer pool.Shutdown()

	assert.ErrorIs(t, pool.Submit(nil), ErrNilJob)
	assert.ErrorIs(t, pool.SubmitFunc(nil), ErrNilJob)
}

func TestWorkerPool_PanicIsolated(t *testing.T) {
	pool := newTestPool(t, 1)

	var after atomic.Bool
	require.NoError(t, pool.SubmitFunc(func() { panic("boom") }))
	require.NoError(t, pool.SubmitFunc(func() { after.Store(true) }))

	pool.Shutdown()

	assert.True(t, after.Load(), "worker must keep serving after a job panics")
	stats := pool.Stats()
	assert.Equal(t, uint64(1), stats.TasksPanicked)
	assert.Equal(t, uint64(2), stats.TasksCompleted)
}

func TestWorkerPool_BoundedParallelism(t *testing.T) {
	const workers = 3
	pool := newTestPool(t, workers)

	var (
		mu      sync.Mutex
		current int
		peak    int
	)
	for i := 0; i < 30; i++ {
		require.NoError(t, pool.SubmitFunc(func() {
			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			current--
			mu.Unlock()
		}))
	}
	pool.Shutdown()

	assert.LessOrEqual(t, peak, workers)
	assert.Equal(t, workers, pool.Size())
}

func TestWorkerPool_SingleWorkerIsSequential(t *testing.T) {
	pool := newTestPool(t, 1)

	var (
		mu    sync.Mutex
		trace []string
	)
	record := func(s string) {
		mu.Lock()
		trace = append(trace, s)
		mu.Unlock()
	}

	for _, name := range []string{"a", "b", "c"} {
		name := name
		require.NoError(t, pool.SubmitFunc(func() {
			record(name + ":start")
			time.Sleep(5 * time.Millisecond)
			record(name + ":end")
		}))
	}
	pool.Shutdown()

	assert.Equal(t, []string{"a:start", "a:end", "b:start", "b:end", "c:start", "c:end"}, trace)
}

func TestBufferPool_Tiers(t *testing.T) {
	bp := NewBufferPool()

	small := bp.Get(10)
	assert.GreaterOrEqual(t, cap(*small), SmallBufferSize)
	assert.Zero(t, len(*small))
	bp.Put(small)

	large := bp.Get(LargeBufferSize + 1)
	assert.GreaterOrEqual(t, cap(*large), LargeBufferSize+1)
	bp.Put(large)

	stats := bp.Stats()
	assert.Equal(t, uint64(2), stats.TotalGets)
	assert.Equal(t, uint64(1), stats.Oversized)
}

func BenchmarkWorkerPool_Submit(b *testing.B) {
	pool, err := NewWorkerPool(8, WithLogger(quietLogger()), WithQueueSize(256))
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = pool.SubmitFunc(func() {
				_ = 1 + 1
			})
		}
	})
	pool.Shutdown()
}
