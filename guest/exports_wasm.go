//go:build wasip1

package guest

import (
	"log/slog"
	"os"

	"github.com/reglet-dev/votepoll/internal/abi"
	"github.com/reglet-dev/votepoll/log"
)

// init routes guest logging to WASI stderr, where the host forwarder picks it up.
func init() {
	level := slog.LevelInfo
	if os.Getenv("VOTEPOLL_GUEST_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(log.NewHandler(log.WithOutput(os.Stderr), log.WithLevel(level))))
}

// contractInit exercises the allocator and returns InitToken.
//
//go:wasmexport init
func contractInit() int32 {
	ptr, err := abi.Allocate(10)
	if err != nil {
		slog.Error("guest: init allocation failed", "error", err.Error())
		return 0
	}
	abi.Free(ptr)
	return InitToken
}

// exportIncrementVote reads a VoteState at (ptr, length) and returns
// status<<32 | uint32(counter).
//
//go:wasmexport increment_vote
func exportIncrementVote(ptr, length uint32) uint64 {
	input, err := abi.BytesFromPtr(ptr, length)
	if err != nil {
		slog.Warn("guest: increment_vote input out of range", "ptr", ptr, "len", length, "error", err.Error())
		return abi.PackScalar(abi.StatusDecode, 0)
	}
	return incrementVote(input)
}

// exportApplyPollEvent reads a VotePollState at (ptr, length), applies its
// event and returns the packed (ptr, len) of a freshly allocated Envelope.
// The host owns the returned buffer. Zero means the output could not be allocated.
//
//go:wasmexport apply_poll_event
func exportApplyPollEvent(ptr, length uint32) uint64 {
	input, err := abi.BytesFromPtr(ptr, length)
	var out []byte
	if err != nil {
		slog.Warn("guest: apply_poll_event input out of range", "ptr", ptr, "len", length, "error", err.Error())
		out = errorEnvelope(decodeRangeDetail(err))
	} else {
		var panicked bool
		out, panicked = applyPollEvent(input)
		if panicked {
			abi.FreeAllTracked()
		}
	}
	if out == nil {
		return 0
	}

	packed, err := abi.PtrFromBytes(out)
	if err != nil {
		slog.Error("guest: failed to allocate output", "len", len(out), "error", err.Error())
		return 0
	}
	return packed
}
