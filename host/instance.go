package host

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/reglet-dev/votepoll/domain/entities"
	"github.com/reglet-dev/votepoll/domain/errors"
	"github.com/reglet-dev/votepoll/internal/abi"
	"github.com/reglet-dev/votepoll/log"
	"github.com/reglet-dev/votepoll/wireformat"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
)

// Instance is a loaded contract module. Its methods are safe for concurrent
// use; calls on one instance are serialized.
type Instance struct {
	mu          sync.Mutex
	module      api.Module
	compiled    wazero.CompiledModule
	memory      api.Memory
	output      *log.Forwarder
	logger      *slog.Logger
	outputLimit int
	broken      error
	closed      bool
}

func newInstance(mod api.Module, compiled wazero.CompiledModule, output *log.Forwarder, logger *slog.Logger, cfg executorConfig) *Instance {
	return &Instance{
		module:      mod,
		compiled:    compiled,
		memory:      mod.Memory(),
		output:      output,
		logger:      logger,
		outputLimit: cfg.guestOutputLimit,
	}
}

// Name returns the module name the instance was registered under.
func (i *Instance) Name() string {
	return i.module.Name()
}

// Err returns the trap that broke the instance, or nil.
func (i *Instance) Err() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.broken
}

// PushValue encodes v, allocates a guest buffer of the encoded size and
// writes the bytes into it. The caller owns the returned buffer.
func (i *Instance) PushValue(ctx context.Context, v any) (GuestBuffer, error) {
	data, err := wireformat.Marshal(v)
	if err != nil {
		return GuestBuffer{}, err
	}
	return i.PushBytes(ctx, data)
}

// Invoke calls a (ptr, len) -> i64 export with buf and returns its raw result.
func (i *Instance) Invoke(ctx context.Context, name string, buf GuestBuffer) (uint64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if fn := i.module.ExportedFunction(name); fn != nil {
		if err := checkSignature(name, fn.Definition(), invokeSignature); err != nil {
			return 0, err
		}
	}
	results, err := i.callLocked(ctx, name, uint64(buf.Ptr), uint64(buf.Len))
	if err != nil {
		return 0, err
	}
	return results[0], nil
}

// PushBytes copies already-encoded bytes into a fresh guest buffer.
// The caller owns the returned buffer.
func (i *Instance) PushBytes(ctx context.Context, data []byte) (GuestBuffer, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.pushLocked(ctx, data)
}

// Pull reads the buffer described by a packed (ptr, len) export result and
// frees it in the guest.
func (i *Instance) Pull(ctx context.Context, export string, packed uint64) ([]byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.pullLocked(ctx, export, packed)
}

// IncrementVote runs increment_vote on state and returns the new counter.
func (i *Instance) IncrementVote(ctx context.Context, state entities.VoteState) (int32, error) {
	data, err := wireformat.Encode(state)
	if err != nil {
		return 0, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	in, err := i.pushLocked(ctx, data)
	if err != nil {
		return 0, fmt.Errorf("push VoteState: %w", err)
	}
	results, err := i.callLocked(ctx, ExportIncrementVote, uint64(in.Ptr), uint64(in.Len))
	if err != nil {
		return 0, err
	}
	if err := i.freeLocked(ctx, in); err != nil {
		return 0, err
	}

	status, value := abi.UnpackScalar(results[0])
	if status != abi.StatusOK {
		return 0, &errors.GuestError{Export: ExportIncrementVote, Detail: statusDetail(status)}
	}
	i.logger.Debug("vote incremented", "value", state.Value, "result", value)
	return value, nil
}

// ApplyPollEvent runs apply_poll_event on state and returns the new state.
// Both the input and the output guest buffers are freed before returning.
func (i *Instance) ApplyPollEvent(ctx context.Context, state entities.VotePollState) (entities.VotePollState, error) {
	data, err := wireformat.Encode(state)
	if err != nil {
		return entities.VotePollState{}, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	in, err := i.pushLocked(ctx, data)
	if err != nil {
		return entities.VotePollState{}, fmt.Errorf("push VotePollState: %w", err)
	}
	results, err := i.callLocked(ctx, ExportApplyPollEvent, uint64(in.Ptr), uint64(in.Len))
	if err != nil {
		return entities.VotePollState{}, err
	}
	if err := i.freeLocked(ctx, in); err != nil {
		return entities.VotePollState{}, err
	}

	raw, err := i.pullLocked(ctx, ExportApplyPollEvent, results[0])
	if err != nil {
		return entities.VotePollState{}, fmt.Errorf("pull %s result: %w", ExportApplyPollEvent, err)
	}

	envelope, err := wireformat.Decode[entities.Envelope](raw)
	if err != nil {
		return entities.VotePollState{}, err
	}
	if envelope.Failed() {
		return entities.VotePollState{}, &errors.GuestError{Export: ExportApplyPollEvent, Detail: envelope.Error}
	}

	next, err := wireformat.Decode[entities.VotePollState](envelope.Payload)
	if err != nil {
		return entities.VotePollState{}, err
	}
	i.logger.Debug("poll event applied", "event", state.Event.String(), "options", len(next.Tallies))
	return next, nil
}

// Init calls the init export and returns its token.
func (i *Instance) Init(ctx context.Context) (int32, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	results, err := i.callLocked(ctx, ExportInit)
	if err != nil {
		return 0, err
	}
	return int32(uint32(results[0])), nil //nolint:gosec // G115: i32 result
}

// LastLength returns the guest's record of its most recent output length.
func (i *Instance) LastLength(ctx context.Context) (uint32, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	results, err := i.callLocked(ctx, ExportGetLastLength)
	if err != nil {
		return 0, err
	}
	return uint32(results[0]), nil //nolint:gosec // G115: i32 result
}

// Reset drops every allocation the guest is tracking. Outstanding
// GuestBuffers become invalid.
func (i *Instance) Reset(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	_, err := i.callLocked(ctx, ExportReset)
	return err
}

// Stats returns the number of live guest allocations and their total size.
func (i *Instance) Stats(ctx context.Context) (count, bytes uint32, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	results, err := i.callLocked(ctx, ExportStats)
	if err != nil {
		return 0, 0, err
	}
	return uint32(results[0] >> abi.PtrHighBits), uint32(results[0]), nil //nolint:gosec // G115: packed 32-bit halves
}

// Close releases the module instance. Closing twice is a no-op.
func (i *Instance) Close(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil
	}
	i.closed = true
	i.output.Flush()
	return multierr.Combine(i.module.Close(ctx), i.compiled.Close(ctx))
}

// statusDetail maps a scalar status code to the error the guest reported.
func statusDetail(status uint32) *entities.ErrorDetail {
	switch status {
	case abi.StatusDecode:
		return entities.NewErrorDetail(entities.ErrorTypeDecode, "malformed VoteState").WithCode("VoteState")
	case abi.StatusAllocation:
		return entities.NewErrorDetail(entities.ErrorTypeAllocation, "guest allocation failed")
	case abi.StatusPanic:
		return entities.NewErrorDetail(entities.ErrorTypePanic, "guest panic")
	default:
		return entities.NewErrorDetail(entities.ErrorTypeInternal, fmt.Sprintf("unknown guest status %d", status))
	}
}
