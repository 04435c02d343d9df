// Package abi provides memory management for the WASM linear memory.
//
// The Tracker in this file holds the allocator bookkeeping and is plain Go so it
// can be tested on any platform. The wasip1 build binds it to real linear-memory
// addresses and exports it to the host (see memory_wasm.go).
package abi

import (
	"fmt"
	"sync"

	"github.com/reglet-dev/votepoll/domain/errors"
)

// DefaultMaxTotalAllocations is the default cap on live guest allocations.
// This prevents unbounded memory growth in WASM linear memory.
const DefaultMaxTotalAllocations = 100 * 1024 * 1024 // 100 MB

// PtrHighBits is the shift applied to the pointer half of a packed value.
const PtrHighBits = 32

// AddressFunc returns the linear-memory address of the first byte backing buf.
// buf always has capacity of at least one byte.
type AddressFunc func(buf []byte) uint32

// Option configures a Tracker.
type Option func(*trackerConfig)

type trackerConfig struct {
	maxTotalAllocations int
}

func defaultTrackerConfig() trackerConfig {
	return trackerConfig{
		maxTotalAllocations: DefaultMaxTotalAllocations,
	}
}

// WithMaxTotalAllocations sets the cap on live allocated bytes.
// Zero or negative limits are ignored.
func WithMaxTotalAllocations(limit int) Option {
	return func(c *trackerConfig) {
		if limit > 0 {
			c.maxTotalAllocations = limit
		}
	}
}

// Tracker pins every buffer handed out to the host so the Go GC cannot collect
// it, until the host frees it explicitly or the arena is reset.
type Tracker struct {
	addr           AddressFunc
	ptrs           map[uint32][]byte // ptr -> slice reference
	config         trackerConfig
	totalAllocated int    // Total bytes currently allocated
	lastLength     uint32 // Length of the most recent output buffer
	mu             sync.Mutex
}

// NewTracker creates a Tracker that resolves addresses with addr.
func NewTracker(addr AddressFunc, opts ...Option) *Tracker {
	t := &Tracker{
		addr:   addr,
		ptrs:   make(map[uint32][]byte),
		config: defaultTrackerConfig(),
	}
	t.Configure(opts...)
	return t
}

// Configure applies options to an existing tracker.
func (t *Tracker) Configure(opts ...Option) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, opt := range opts {
		opt(&t.config)
	}
}

// Allocate reserves size bytes and returns their address.
// A zero-size request still gets a distinct, non-zero address backed by one
// byte of storage; its recorded length is zero. Zero is never returned on success.
func (t *Tracker) Allocate(size uint32) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.totalAllocated+int(size) > t.config.maxTotalAllocations {
		return 0, &errors.AllocationError{
			Requested: int(size),
			Current:   t.totalAllocated,
			Limit:     t.config.maxTotalAllocations,
		}
	}

	backing := size
	if backing == 0 {
		backing = 1
	}
	buf := make([]byte, size, backing)
	ptr := t.addr(buf[:backing])
	if ptr == 0 {
		return 0, &errors.AllocationError{Requested: int(size)}
	}

	t.ptrs[ptr] = buf // PIN THE MEMORY: Store the slice to prevent GC
	t.totalAllocated += int(size)
	return ptr, nil
}

// Free releases a tracked buffer. Untracked pointers are ignored, so Free is
// idempotent. Accounting uses the stored length, not any caller-supplied size.
func (t *Tracker) Free(ptr uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	storedSlice, exists := t.ptrs[ptr]
	if !exists {
		return
	}
	delete(t.ptrs, ptr)
	t.totalAllocated -= len(storedSlice)

	// Prevent negative totalAllocated due to double-free or other bugs
	if t.totalAllocated < 0 {
		t.totalAllocated = 0
	}
}

// FreeAll releases every tracked buffer. Used for arena resets and panic recovery.
func (t *Tracker) FreeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for ptr := range t.ptrs {
		delete(t.ptrs, ptr)
	}
	t.totalAllocated = 0
}

// Lookup returns the first length bytes of the tracked buffer starting at ptr.
// It fails if ptr is not the start of a live allocation or if length runs past
// the allocation's end; no address outside the allocator is ever dereferenced.
func (t *Tracker) Lookup(ptr, length uint32) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	buf, ok := t.ptrs[ptr]
	if !ok {
		return nil, fmt.Errorf("abi: pointer 0x%x is not a live allocation", ptr)
	}
	if int(length) > len(buf) {
		return nil, fmt.Errorf("abi: read of %d bytes at 0x%x exceeds allocation of %d bytes", length, ptr, len(buf))
	}
	return buf[:length:length], nil
}

// SetLastLength records the length of the most recently produced output buffer.
func (t *Tracker) SetLastLength(n uint32) {
	t.mu.Lock()
	t.lastLength = n
	t.mu.Unlock()
}

// LastLength returns the value recorded by SetLastLength.
func (t *Tracker) LastLength() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastLength
}

// Stats returns the number of live allocations and their total size.
func (t *Tracker) Stats() (allocCount, totalBytes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ptrs), t.totalAllocated
}

// PackPtrLen packs a pointer and length into a single uint64.
// Pointer is stored in the high 32 bits, length in the low 32 bits.
// Panics if ptr is 0 and length > 0, indicating an invalid state.
func PackPtrLen(ptr, length uint32) uint64 {
	if ptr == 0 && length > 0 {
		panic(fmt.Sprintf("abi: invalid pack - null pointer (0x0) with non-zero length (%d)", length))
	}
	return (uint64(ptr) << PtrHighBits) | uint64(length)
}

// UnpackPtrLen unpacks a uint64 into its original pointer and length.
// Panics if ptr is 0 and length > 0, indicating an invalid packed value.
func UnpackPtrLen(packed uint64) (ptr, length uint32) {
	ptr = uint32(packed >> PtrHighBits)
	length = uint32(packed)
	if ptr == 0 && length > 0 {
		panic(fmt.Sprintf("abi: invalid unpack - null pointer (0x0) with non-zero length (%d)", length))
	}
	return ptr, length
}

// Status codes carried in the high half of a packed scalar result.
const (
	StatusOK         uint32 = 0
	StatusDecode     uint32 = 1
	StatusAllocation uint32 = 2
	StatusPanic      uint32 = 3
)

// PackScalar packs a status code and an int32 result into a uint64.
func PackScalar(status uint32, value int32) uint64 {
	return (uint64(status) << PtrHighBits) | uint64(uint32(value))
}

// UnpackScalar reverses PackScalar.
func UnpackScalar(packed uint64) (status uint32, value int32) {
	return uint32(packed >> PtrHighBits), int32(uint32(packed))
}
