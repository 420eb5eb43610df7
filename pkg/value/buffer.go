package value

import (
	"bytes"
	"io"
	"sync"

	"github.com/edgekernel/core/pkg/coreerr"
)

// Buffer is a resizable byte array with random-access get/put/insert and a
// stream facade (io.Reader/io.Writer via Stream()).
type Buffer struct {
	mu   sync.RWMutex
	data []byte
}

func NewBuffer() *Buffer { return &Buffer{} }

func NewBufferFrom(b []byte) *Buffer {
	return &Buffer{data: append([]byte(nil), b...)}
}

func (b *Buffer) selfPtr() any                   { return b }
func (b *Buffer) containerChildren() []Container { return nil } // buffers hold no container children

func (b *Buffer) Clone() Container {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return &Buffer{data: append([]byte(nil), b.data...)}
}

func (b *Buffer) Size() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return uint32(len(b.data))
}

func (b *Buffer) Empty() bool { return b.Size() == 0 }

// Get copies at most len(dst) bytes starting at off into dst, returning the
// number of bytes actually copied.
func (b *Buffer) Get(off int, dst []byte) uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if off < 0 || off >= len(b.data) {
		return 0
	}
	n := copy(dst, b.data[off:])
	return uint32(n)
}

// Put writes span at off, growing (zero-extending) the buffer as needed.
func (b *Buffer) Put(off int, span []byte) error {
	if off < 0 {
		return coreerr.Newf(coreerr.InvalidBufferError, "negative offset %d", off)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	end := off + len(span)
	if end > len(b.data) {
		b.growLocked(end)
	}
	copy(b.data[off:end], span)
	return nil
}

// Insert shifts the tail at off to the right and writes span in the gap.
func (b *Buffer) Insert(off int, span []byte) error {
	if off < 0 {
		return coreerr.Newf(coreerr.InvalidBufferError, "negative offset %d", off)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if off > len(b.data) {
		b.growLocked(off)
	}
	out := make([]byte, 0, len(b.data)+len(span))
	out = append(out, b.data[:off]...)
	out = append(out, span...)
	out = append(out, b.data[off:]...)
	b.data = out
	return nil
}

// Resize truncates or zero-extends the buffer to exactly n bytes.
func (b *Buffer) Resize(n int) error {
	if n < 0 {
		return coreerr.Newf(coreerr.InvalidBufferError, "negative size %d", n)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= len(b.data) {
		b.data = b.data[:n]
		return nil
	}
	b.growLocked(n)
	return nil
}

// growLocked extends data to length n, zero-filling the new tail. Caller
// must hold b.mu.
func (b *Buffer) growLocked(n int) {
	if n <= len(b.data) {
		return
	}
	grown := make([]byte, n)
	copy(grown, b.data)
	b.data = grown
}

// Bytes returns a copy of the buffer's contents.
func (b *Buffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]byte(nil), b.data...)
}

// Stream returns an io.Reader snapshotting the buffer's current contents.
func (b *Buffer) Stream() io.Reader {
	return bytes.NewReader(b.Bytes())
}

// Writer returns an io.Writer that appends to the buffer.
func (b *Buffer) Writer() io.Writer {
	return (*bufferWriter)(b)
}

type bufferWriter Buffer

func (w *bufferWriter) Write(p []byte) (int, error) {
	buf := (*Buffer)(w)
	buf.mu.Lock()
	defer buf.mu.Unlock()
	buf.data = append(buf.data, p...)
	return len(p), nil
}
