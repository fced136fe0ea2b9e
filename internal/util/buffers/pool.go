// Package buffers pools the copy buffers used when streaming uploads to disk.
package buffers

import (
	"sync"
	"sync/atomic"

	"github.com/rescale/rescale-intake/internal/constants"
)

// Pool monitoring counters
var (
	copyAllocations atomic.Int64 // Buffers created because the pool was empty
	copyGets        atomic.Int64 // Total GetCopyBuffer calls
)

var copyPool = &sync.Pool{
	New: func() interface{} {
		copyAllocations.Add(1)
		buf := make([]byte, constants.CopyBufferSize)
		return &buf
	},
}

// GetCopyBuffer retrieves a buffer from the pool. Return it with
// PutCopyBuffer when done.
//
// Usage:
//
//	buf := buffers.GetCopyBuffer()
//	defer buffers.PutCopyBuffer(buf)
//	n, err := io.CopyBuffer(dst, src, *buf)
func GetCopyBuffer() *[]byte {
	copyGets.Add(1)
	return copyPool.Get().(*[]byte)
}

// PutCopyBuffer returns a buffer to the pool. Only buffers of
// constants.CopyBufferSize are pooled. The buffer is cleared first so
// upload content does not linger.
func PutCopyBuffer(buf *[]byte) {
	if buf != nil && len(*buf) == constants.CopyBufferSize {
		clear(*buf)
		copyPool.Put(buf)
	}
}

// Stats returns current buffer pool statistics
type Stats struct {
	BufferSize  int   // Size of pooled buffers (bytes)
	Allocations int64 // Buffers created
	Gets        int64 // Buffers handed out
}

// GetStats returns a snapshot of the pool counters.
func GetStats() Stats {
	return Stats{
		BufferSize:  constants.CopyBufferSize,
		Allocations: copyAllocations.Load(),
		Gets:        copyGets.Load(),
	}
}
