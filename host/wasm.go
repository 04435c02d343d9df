package host

import (
	"context"
	"fmt"
	"time"

	"github.com/reglet-dev/votepoll/domain/errors"
	"github.com/reglet-dev/votepoll/internal/abi"
	"go.uber.org/multierr"
)

// callLocked invokes an export. Any error from the runtime is a trap: the
// instance is marked broken and every later call returns the same error.
func (i *Instance) callLocked(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	if i.closed {
		return nil, errors.ErrInstanceClosed
	}
	if i.broken != nil {
		return nil, i.broken
	}

	fn := i.module.ExportedFunction(name)
	if fn == nil {
		return nil, &errors.MissingExportError{Name: name}
	}

	start := time.Now()
	results, err := fn.Call(ctx, params...)
	i.output.Flush()
	if err != nil {
		i.broken = &errors.TrapError{Export: name, Err: err}
		i.logger.Error("guest call trapped", "export", name, "error", err)
		return nil, i.broken
	}

	i.logger.Debug("guest call", "export", name, "duration", time.Since(start))
	return results, nil
}

// allocateLocked reserves size bytes in the guest. A null pointer from the
// guest means its allocator refused the request.
func (i *Instance) allocateLocked(ctx context.Context, size uint32) (GuestBuffer, error) {
	results, err := i.callLocked(ctx, ExportAllocate, uint64(size))
	if err != nil {
		return GuestBuffer{}, err
	}
	ptr := uint32(results[0]) //nolint:gosec // G115: WASM32 pointers are always 32-bit
	if ptr == 0 {
		return GuestBuffer{}, &errors.AllocationError{Requested: int(size)}
	}
	return GuestBuffer{Ptr: ptr, Len: size, owner: i}, nil
}

// pushLocked copies data into a fresh guest buffer.
func (i *Instance) pushLocked(ctx context.Context, data []byte) (GuestBuffer, error) {
	buf, err := i.allocateLocked(ctx, uint32(len(data))) //nolint:gosec // G115: inputs are far below 4 GiB
	if err != nil {
		return GuestBuffer{}, err
	}
	if err := writeMemory(i.memory, buf.Ptr, data); err != nil {
		_ = i.freeLocked(ctx, buf)
		return GuestBuffer{}, err
	}
	i.logger.Debug("pushed value", "ptr", buf.Ptr, "len", buf.Len)
	return buf, nil
}

// freeLocked releases buf in the guest allocator.
func (i *Instance) freeLocked(ctx context.Context, buf GuestBuffer) error {
	if buf.IsNull() {
		return nil
	}
	_, err := i.callLocked(ctx, ExportDeallocate, uint64(buf.Ptr), uint64(buf.Len))
	return err
}

// pullLocked interprets a packed (ptr, len) result, copies the bytes out and
// frees the guest buffer. The guest reports a failed output allocation as 0.
func (i *Instance) pullLocked(ctx context.Context, export string, packed uint64) ([]byte, error) {
	ptr := uint32(packed >> abi.PtrHighBits) //nolint:gosec // G115: packed format stores 32-bit values
	length := uint32(packed)                 //nolint:gosec // G115: packed format stores 32-bit values

	if ptr == 0 {
		if length > 0 {
			return nil, fmt.Errorf("guest %s returned null pointer with length %d", export, length)
		}
		return nil, &errors.AllocationError{}
	}
	buf := GuestBuffer{Ptr: ptr, Len: length, owner: i}

	if int64(length) > int64(i.outputLimit) {
		_ = i.freeLocked(ctx, buf)
		return nil, fmt.Errorf("guest %s output of %d bytes exceeds limit of %d bytes", export, length, i.outputLimit)
	}

	data, err := readMemory(i.memory, ptr, length)
	if err != nil {
		return nil, multierr.Append(err, i.freeLocked(ctx, buf))
	}
	if err := i.freeLocked(ctx, buf); err != nil {
		return nil, err
	}
	i.logger.Debug("pulled value", "export", export, "ptr", ptr, "len", length)
	return data, nil
}
