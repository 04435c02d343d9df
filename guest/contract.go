// Package guest implements the contract exports of the votepoll WebAssembly module.
//
// The handlers in this file work on plain byte slices and are built for every
// platform so they can be tested natively. exports_wasm.go binds them to linear
// memory and exposes them to the host under their wasm export names.
package guest

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/reglet-dev/votepoll/application/engine"
	"github.com/reglet-dev/votepoll/domain/entities"
	"github.com/reglet-dev/votepoll/domain/errors"
	"github.com/reglet-dev/votepoll/internal/abi"
	"github.com/reglet-dev/votepoll/wireformat"
)

// InitToken is the fixed value returned by the init export.
const InitToken int32 = 42

// Transitions run by the exports. Tests replace them to exercise panic recovery.
var (
	incrementTransition = engine.IncrementVote
	applyTransition     = engine.Apply
)

// incrementVote decodes a VoteState and returns the packed status and counter.
func incrementVote(input []byte) (packed uint64) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("guest: increment_vote panic recovered", "error", fmt.Sprint(r))
			packed = abi.PackScalar(abi.StatusPanic, 0)
		}
	}()

	state, err := wireformat.Decode[entities.VoteState](input)
	if err != nil {
		slog.Warn("guest: increment_vote rejected input", "error", err.Error(), "len", len(input))
		return abi.PackScalar(abi.StatusDecode, 0)
	}

	next := incrementTransition(state)
	slog.Debug("guest: increment_vote", "value", state.Value, "result", next)
	return abi.PackScalar(abi.StatusOK, next)
}

// applyPollEvent decodes a VotePollState, applies its event and returns the
// encoded Envelope. panicked reports a recovered panic, after which the caller
// must drop every tracked allocation.
func applyPollEvent(input []byte) (out []byte, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			detail := &entities.ErrorDetail{
				Message: fmt.Sprintf("guest panic: %v", r),
				Type:    entities.ErrorTypePanic,
				Stack:   debug.Stack(),
			}
			slog.Error("guest: apply_poll_event panic recovered", "error", detail.Message)
			out, panicked = errorEnvelope(detail), true
		}
	}()

	state, err := wireformat.Decode[entities.VotePollState](input)
	if err != nil {
		slog.Warn("guest: apply_poll_event rejected input", "error", err.Error(), "len", len(input))
		return errorEnvelope(errors.ToErrorDetail(err)), false
	}

	next := applyTransition(state)
	slog.Debug("guest: apply_poll_event",
		"event", state.Event.String(),
		"options", len(next.Tallies),
		"value", next.Value,
	)

	payload, err := wireformat.Encode(next)
	if err != nil {
		slog.Error("guest: failed to encode state", "error", err.Error())
		return errorEnvelope(errors.ToErrorDetail(err)), false
	}

	data, err := wireformat.Encode(entities.Envelope{Payload: payload})
	if err != nil {
		slog.Error("guest: failed to encode envelope", "error", err.Error())
		return errorEnvelope(errors.ToErrorDetail(err)), false
	}
	return data, false
}

// errorEnvelope encodes an Envelope carrying detail. If that fails the result
// is nil and the export reports an allocation-style null buffer.
func errorEnvelope(detail *entities.ErrorDetail) []byte {
	data, err := wireformat.Encode(entities.Envelope{Error: detail})
	if err != nil {
		slog.Error("guest: critical - failed to encode error envelope",
			"original_error", detail.Message, "encode_error", err.Error())
		return nil
	}
	return data
}

// decodeRangeDetail reports an input region the allocator does not own.
func decodeRangeDetail(err error) *entities.ErrorDetail {
	return errors.ToErrorDetail(&errors.DecodeError{Record: "VotePollState", Err: err})
}
