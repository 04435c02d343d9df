//go:build wasip1

package abi

import (
	"log/slog"
	"unsafe"
)

var tracker = NewTracker(addressOf)

// addressOf resolves the linear-memory offset of buf's backing array.
func addressOf(buf []byte) uint32 {
	// WASM linear memory: pointer -> uint32 offset conversion is safe and necessary
	//nolint:gosec // G103: Valid unsafe.Pointer use for WASM linear memory access
	return uint32(uintptr(unsafe.Pointer(unsafe.SliceData(buf))))
}

// Configure applies options to the guest allocator.
func Configure(opts ...Option) {
	tracker.Configure(opts...)
}

// allocate reserves memory in the WASM linear memory and returns a pointer.
// It returns 0 instead of trapping when the allocation limit would be exceeded.
//
//go:wasmexport allocate
func allocate(size uint32) uint32 {
	ptr, err := tracker.Allocate(size)
	if err != nil {
		slog.Error("abi: allocation refused", "error", err)
		return 0
	}
	return ptr
}

// deallocate frees memory by removing the reference from the tracker,
// allowing the Go GC to collect it. The size argument is informational only.
//
//go:wasmexport deallocate
func deallocate(ptr uint32, _ uint32) {
	tracker.Free(ptr)
}

// reset drops every tracked allocation, starting a fresh arena.
//
//go:wasmexport reset
func reset() {
	tracker.FreeAll()
}

//go:wasmexport get_last_length
func getLastLength() uint32 {
	return tracker.LastLength()
}

// stats reports live allocations as count<<32 | bytes.
//
//go:wasmexport stats
func stats() uint64 {
	count, total := tracker.Stats()
	return (uint64(uint32(count)) << PtrHighBits) | uint64(uint32(total))
}

// FreeAllTracked frees all memory currently tracked by the guest.
// This is called during panic recovery to prevent leaks.
func FreeAllTracked() {
	tracker.FreeAll()
}

// Allocate reserves size bytes of tracked memory for guest-internal use.
func Allocate(size uint32) (uint32, error) {
	return tracker.Allocate(size)
}

// Free releases memory obtained from Allocate.
func Free(ptr uint32) {
	tracker.Free(ptr)
}

// PtrFromBytes allocates WASM memory, copies the given data into it, records
// its length as the last output length, and returns the packed pointer and length.
// The host owns the buffer afterwards and must release it with deallocate.
func PtrFromBytes(data []byte) (uint64, error) {
	size := uint32(len(data))
	ptr, err := tracker.Allocate(size)
	if err != nil {
		return 0, err
	}
	dest, err := tracker.Lookup(ptr, size)
	if err != nil {
		tracker.Free(ptr)
		return 0, err
	}
	copy(dest, data)
	tracker.SetLastLength(size)
	return PackPtrLen(ptr, size), nil
}

// BytesFromPtr returns a copy of length bytes the host wrote at ptr.
// The region must lie inside a live allocation made through allocate.
func BytesFromPtr(ptr, length uint32) ([]byte, error) {
	src, err := tracker.Lookup(ptr, length)
	if err != nil {
		return nil, err
	}
	data := make([]byte, length) // Create a new slice to return a copy
	copy(data, src)
	return data, nil
}
