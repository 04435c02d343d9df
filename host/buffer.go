package host

import (
	"context"
	"fmt"

	"github.com/reglet-dev/votepoll/domain/errors"
	"github.com/tetratelabs/wazero/api"
)

// GuestBuffer is a handle to a region of an instance's linear memory that the
// guest allocator handed out. It is the only way host code reaches guest
// memory: reads are bounds-checked against the memory and copied out.
type GuestBuffer struct {
	Ptr uint32
	Len uint32

	owner *Instance
}

// IsNull reports whether the buffer is the null buffer.
func (b GuestBuffer) IsNull() bool {
	return b.Ptr == 0
}

// Read copies the buffer's bytes out of guest memory.
func (b GuestBuffer) Read() ([]byte, error) {
	if b.owner == nil {
		return nil, fmt.Errorf("guest buffer 0x%x has no owning instance", b.Ptr)
	}
	b.owner.mu.Lock()
	defer b.owner.mu.Unlock()
	if b.owner.closed {
		return nil, errors.ErrInstanceClosed
	}
	return readMemory(b.owner.memory, b.Ptr, b.Len)
}

// Free returns the buffer to the guest allocator. Freeing twice is harmless.
func (b GuestBuffer) Free(ctx context.Context) error {
	if b.owner == nil || b.IsNull() {
		return nil
	}
	b.owner.mu.Lock()
	defer b.owner.mu.Unlock()
	return b.owner.freeLocked(ctx, b)
}

// readMemory copies length bytes at offset. A zero-length read of a valid
// address yields an empty, non-nil slice.
func readMemory(mem api.Memory, offset, length uint32) ([]byte, error) {
	data, ok := mem.Read(offset, length)
	if !ok {
		return nil, &errors.MissingMemoryError{Access: "read", Offset: offset, Length: length}
	}
	out := make([]byte, length)
	copy(out, data)
	return out, nil
}

// writeMemory writes data at offset.
func writeMemory(mem api.Memory, offset uint32, data []byte) error {
	if !mem.Write(offset, data) {
		return &errors.MissingMemoryError{Access: "write", Offset: offset, Length: uint32(len(data))} //nolint:gosec // G115: bounded by allocate
	}
	return nil
}
