package buffers

import (
	"bytes"
	"io"
	"testing"

	"github.com/rescale/rescale-intake/internal/constants"
)

// TestCopyBufferPool verifies that buffers can be retrieved and returned
func TestCopyBufferPool(t *testing.T) {
	buf := GetCopyBuffer()
	if buf == nil {
		t.Fatal("GetCopyBuffer returned nil")
	}
	if len(*buf) != constants.CopyBufferSize {
		t.Errorf("Buffer size = %d, want %d", len(*buf), constants.CopyBufferSize)
	}
	PutCopyBuffer(buf)

	buf2 := GetCopyBuffer()
	if buf2 == nil {
		t.Fatal("GetCopyBuffer returned nil on second call")
	}
	PutCopyBuffer(buf2)
}

// TestPutCopyBufferClears verifies pooled buffers come back zeroed
func TestPutCopyBufferClears(t *testing.T) {
	buf := GetCopyBuffer()
	(*buf)[0] = 0xff
	PutCopyBuffer(buf)
	if (*buf)[0] != 0 {
		t.Error("buffer not cleared on return")
	}
}

// TestPutCopyBufferWrongSize verifies wrong-sized buffers are ignored
func TestPutCopyBufferWrongSize(t *testing.T) {
	wrong := make([]byte, 1024)
	PutCopyBuffer(&wrong) // must not panic
	PutCopyBuffer(nil)
}

func TestCopyWithPooledBuffer(t *testing.T) {
	src := bytes.Repeat([]byte("abc"), constants.CopyBufferSize)
	buf := GetCopyBuffer()
	defer PutCopyBuffer(buf)

	var dst bytes.Buffer
	n, err := io.CopyBuffer(&dst, bytes.NewReader(src), *buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len(src)) || !bytes.Equal(dst.Bytes(), src) {
		t.Errorf("copied %d bytes, content equal = %v", n, bytes.Equal(dst.Bytes(), src))
	}
}

func TestGetStats(t *testing.T) {
	before := GetStats()
	PutCopyBuffer(GetCopyBuffer())
	after := GetStats()

	if after.BufferSize != constants.CopyBufferSize {
		t.Errorf("BufferSize = %d", after.BufferSize)
	}
	if after.Gets != before.Gets+1 {
		t.Errorf("Gets = %d, want %d", after.Gets, before.Gets+1)
	}
	if after.Allocations < 1 {
		t.Errorf("Allocations = %d, want >= 1", after.Allocations)
	}
}
