package pools

import (
	"sync"
	"sync/atomic"
)

// Buffer pool sizes
const (
	SmallBufferSize  = 512       // status line + a few headers, no body
	MediumBufferSize = 4 * 1024  // typical text responses
	LargeBufferSize  = 32 * 1024 // largest buffer kept for reuse
)

// BufferPool hands out serialization buffers in three size tiers
type BufferPool struct {
	tiers [3]sync.Pool

	gets      atomic.Uint64
	oversized atomic.Uint64
}

var tierSizes = [3]int{SmallBufferSize, MediumBufferSize, LargeBufferSize}

// NewBufferPool creates a new buffer pool
func NewBufferPool() *BufferPool {
	bp := &BufferPool{}
	for i, size := range tierSizes {
		sz := size
		bp.tiers[i].New = func() any {
			buf := make([]byte, 0, sz)
			return &buf
		}
	}
	return bp
}

// Get returns an empty buffer whose capacity is at least estimatedSize
// when estimatedSize fits a tier.
func (bp *BufferPool) Get(estimatedSize int) *[]byte {
	bp.gets.Add(1)

	for i, size := range tierSizes {
		if estimatedSize <= size {
			return bp.tiers[i].Get().(*[]byte)
		}
	}

	bp.oversized.Add(1)
	buf := make([]byte, 0, estimatedSize)
	return &buf
}

// Put returns a buffer to the tier matching its capacity
func (bp *BufferPool) Put(buf *[]byte) {
	if buf == nil {
		return
	}

	*buf = (*buf)[:0]
	c := cap(*buf)

	// A buffer grown past its tier goes to the largest tier it still fills.
	for i := len(tierSizes) - 1; i >= 0; i-- {
		if c >= tierSizes[i] {
			if c > LargeBufferSize {
				return // oversized buffers are left to the GC
			}
			bp.tiers[i].Put(buf)
			return
		}
	}
}

// Stats returns buffer pool statistics
func (bp *BufferPool) Stats() BufferStats {
	return BufferStats{
		TotalGets: bp.gets.Load(),
		Oversized: bp.oversized.Load(),
	}
}

// BufferStats contains buffer pool statistics
type BufferStats struct {
	TotalGets uint64
	Oversized uint64
}

var globalBufferPool = NewBufferPool()

// AcquireBuffer gets a buffer from the global pool
func AcquireBuffer(estimatedSize int) *[]byte {
	return globalBufferPool.Get(estimatedSize)
}

// ReleaseBuffer returns a buffer to the global pool
func ReleaseBuffer(buf *[]byte) {
	globalBufferPool.Put(buf)
}
