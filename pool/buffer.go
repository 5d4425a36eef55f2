// Package pool provides sync.Pool wrappers for reducing GC pressure.
package pool

import (
	"sync"
)

// Buffer is a reusable byte buffer for building ER7 text.
type Buffer struct {
	buf []byte
}

var bufferPool = sync.Pool{
	New: func() any {
		return &Buffer{
			buf: make([]byte, 0, 1024),
		}
	},
}

// AcquireBuffer gets a Buffer from the pool.
// Call Release() when done to return it to the pool.
func AcquireBuffer() *Buffer {
	b := bufferPool.Get().(*Buffer)
	b.Reset()
	return b
}

// Release returns the Buffer to the pool.
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	// Don't return oversized buffers to the pool
	if cap(b.buf) <= 64*1024 {
		bufferPool.Put(b)
	}
}

// Reset clears the buffer without deallocating.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
}

// Len returns the number of bytes written.
func (b *Buffer) Len() int {
	return len(b.buf)
}

// WriteString appends s.
func (b *Buffer) WriteString(s string) {
	b.buf = append(b.buf, s...)
}

// WriteByte appends c.
func (b *Buffer) WriteByte(c byte) error {
	b.buf = append(b.buf, c)
	return nil
}

// TrimRight removes trailing c bytes, never cutting below offset from.
// Encoders call it to drop empty trailing fields, repetitions or components.
func (b *Buffer) TrimRight(from int, c byte) {
	n := len(b.buf)
	for n > from && b.buf[n-1] == c {
		n--
	}
	b.buf = b.buf[:n]
}

// String returns the content as a string.
func (b *Buffer) String() string {
	return string(b.buf)
}

// Bytes returns a copy of the content.
func (b *Buffer) Bytes() []byte {
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}

// Build runs fn on a pooled Buffer and returns what it wrote.
func Build(fn func(*Buffer)) string {
	b := AcquireBuffer()
	defer b.Release()
	fn(b)
	return b.String()
}
