package log

import (
	"bytes"
)

// DefaultMaxLineSize caps a single guest log line (64 KiB).
const DefaultMaxLineSize = 64 * 1024

// BoundedBuffer accumulates at most limit bytes. Anything past the limit is
// counted and discarded, and Truncated is set.
type BoundedBuffer struct {
	buf       bytes.Buffer
	limit     int
	Truncated bool
	Dropped   int
}

// NewBoundedBuffer returns a buffer capped at limit bytes.
func NewBoundedBuffer(limit int) *BoundedBuffer {
	return &BoundedBuffer{limit: limit}
}

// Write always reports len(p) so a full line never surfaces as a short write.
func (b *BoundedBuffer) Write(p []byte) (int, error) {
	keep := min(len(p), max(b.limit-b.buf.Len(), 0))
	if keep < len(p) {
		b.Truncated = true
		b.Dropped += len(p) - keep
	}
	if _, err := b.buf.Write(p[:keep]); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (b *BoundedBuffer) String() string { return b.buf.String() }

// Bytes aliases the buffer contents until the next Write or Reset.
func (b *BoundedBuffer) Bytes() []byte { return b.buf.Bytes() }

func (b *BoundedBuffer) Len() int { return b.buf.Len() }

// Reset empties the buffer and clears the truncation state.
func (b *BoundedBuffer) Reset() {
	b.buf.Reset()
	b.Truncated = false
	b.Dropped = 0
}
