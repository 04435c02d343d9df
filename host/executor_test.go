package host

import (
	"bytes"
	"context"
	stdErrors "errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/reglet-dev/votepoll/domain/entities"
	"github.com/reglet-dev/votepoll/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T, opts ...Option) *Executor {
	t.Helper()
	ctx := context.Background()
	e, err := NewExecutor(ctx, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, e.Close(ctx)) })
	return e
}

func TestNewExecutor(t *testing.T) {
	ctx := context.Background()
	e, err := NewExecutor(ctx)
	assert.NoError(t, err)
	assert.NotNil(t, e)
	if e != nil {
		err := e.Close(ctx)
		assert.NoError(t, err)
	}
}

func TestExecutorOptions(t *testing.T) {
	cfg := defaultExecutorConfig()
	assert.Equal(t, DefaultMemoryLimitPages, cfg.memoryLimitPages)
	assert.Equal(t, DefaultGuestOutputLimit, cfg.guestOutputLimit)
	assert.True(t, cfg.closeOnContextDone)

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	for _, opt := range []Option{
		WithLogger(logger),
		WithMemoryLimitPages(0),
		WithMemoryLimitPages(1 << 20),
		WithGuestOutputLimit(-1),
		WithCloseOnContextDone(false),
	} {
		opt(&cfg)
	}
	assert.Same(t, logger, cfg.logger)
	assert.Equal(t, uint32(65536), cfg.memoryLimitPages, "limit is clamped to the wasm32 address space")
	assert.Equal(t, DefaultGuestOutputLimit, cfg.guestOutputLimit)
	assert.False(t, cfg.closeOnContextDone)
}

func TestLoadContract_InvalidBytes(t *testing.T) {
	e := newTestExecutor(t)

	_, err := e.LoadContract(context.Background(), []byte("definitely not wasm"))

	var loadErr *errors.LoadError
	require.True(t, stdErrors.As(err, &loadErr), "want LoadError, got %v", err)
}

func TestLoadContractFile_NotFound(t *testing.T) {
	e := newTestExecutor(t)
	path := filepath.Join(t.TempDir(), "missing.wasm")

	_, err := e.LoadContractFile(context.Background(), path)

	var loadErr *errors.LoadError
	require.True(t, stdErrors.As(err, &loadErr))
	assert.Equal(t, path, loadErr.Path)
}

func TestLoadContract_NoMemory(t *testing.T) {
	e := newTestExecutor(t)

	_, err := e.LoadContract(context.Background(), wasmHeader)

	var memErr *errors.MissingMemoryError
	assert.True(t, stdErrors.As(err, &memErr), "want MissingMemoryError, got %v", err)
}

func TestLoadContract_MissingExport(t *testing.T) {
	e := newTestExecutor(t)

	_, err := e.LoadContract(context.Background(), buildModule(true))

	var exportErr *errors.MissingExportError
	require.True(t, stdErrors.As(err, &exportErr), "want MissingExportError, got %v", err)
	assert.Equal(t, ExportAllocate, exportErr.Name)
	assert.Empty(t, exportErr.Reason)
}

func TestLoadContract_WrongSignature(t *testing.T) {
	e := newTestExecutor(t)
	wasm := buildModule(true, stubFunc{export: ExportAllocate})

	_, err := e.LoadContract(context.Background(), wasm)

	var exportErr *errors.MissingExportError
	require.True(t, stdErrors.As(err, &exportErr))
	assert.Equal(t, ExportAllocate, exportErr.Name)
	assert.Equal(t, "should take 1 parameters", exportErr.Reason)
}

func TestLoadContract_WrongResultType(t *testing.T) {
	e := newTestExecutor(t)
	wasm := buildModule(true,
		stubFunc{export: ExportAllocate, params: []byte{valI32}, results: []byte{valI64}, body: []byte{opI64Const, 0x00}},
	)

	_, err := e.LoadContract(context.Background(), wasm)

	var exportErr *errors.MissingExportError
	require.True(t, stdErrors.As(err, &exportErr))
	assert.Equal(t, "expected result 0 to have type i32", exportErr.Reason)
}

func TestStubContract_Init(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t)

	inst, err := e.LoadContract(ctx, stubContract([]byte{opI32Const, 42}))
	require.NoError(t, err)
	defer inst.Close(ctx)

	token, err := inst.Init(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(42), token)
}

func TestStubContract_InstancesAreIndependent(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t)
	wasm := stubContract([]byte{opI32Const, 42})

	first, err := e.LoadContract(ctx, wasm)
	require.NoError(t, err)
	second, err := e.LoadContract(ctx, wasm)
	require.NoError(t, err)

	assert.NotEqual(t, first.Name(), second.Name())
	require.NoError(t, first.Close(ctx))

	_, err = second.Init(ctx)
	assert.NoError(t, err, "closing one instance must not affect another")
}

func TestStubContract_NullAllocationIsAllocationError(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t)

	inst, err := e.LoadContract(ctx, stubContract([]byte{opI32Const, 42}))
	require.NoError(t, err)
	defer inst.Close(ctx)

	_, err = inst.IncrementVote(ctx, entities.VoteState{Value: 22})
	var allocErr *errors.AllocationError
	require.True(t, stdErrors.As(err, &allocErr), "want AllocationError, got %v", err)
	assert.Equal(t, 2, allocErr.Requested)

	_, err = inst.PushValue(ctx, entities.VotePollState{Event: entities.NewPoll("a")})
	assert.True(t, stdErrors.As(err, &allocErr))

	assert.NoError(t, inst.Err(), "a refused allocation does not break the instance")
}

func TestStubContract_OptionalExports(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t)

	inst, err := e.LoadContract(ctx, stubContract([]byte{opI32Const, 42}))
	require.NoError(t, err)
	defer inst.Close(ctx)

	_, _, err = inst.Stats(ctx)
	var exportErr *errors.MissingExportError
	require.True(t, stdErrors.As(err, &exportErr))
	assert.Equal(t, ExportStats, exportErr.Name)

	_, err = inst.Invoke(ctx, ExportInit, GuestBuffer{})
	require.True(t, stdErrors.As(err, &exportErr), "init does not take (ptr, len)")
	assert.NoError(t, inst.Err())
}

func TestInvoke_RejectsWrongValueTypes(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t)

	module := stubContract([]byte{opI32Const, 42},
		stubFunc{export: "narrow_result", params: []byte{valI32, valI32}, results: []byte{valI32}, body: []byte{opI32Const, 0x00}},
		stubFunc{export: "wide_params", params: []byte{valI64, valI32}, results: []byte{valI64}, body: []byte{opI64Const, 0x00}},
	)
	inst, err := e.LoadContract(ctx, module)
	require.NoError(t, err)
	defer inst.Close(ctx)

	tests := []struct {
		export string
		reason string
	}{
		{"narrow_result", "expected result 0 to have type i64"},
		{"wide_params", "expected param 0 to have type i32"},
	}
	for _, tt := range tests {
		t.Run(tt.export, func(t *testing.T) {
			_, err := inst.Invoke(ctx, tt.export, GuestBuffer{})
			var exportErr *errors.MissingExportError
			require.True(t, stdErrors.As(err, &exportErr), "want MissingExportError, got %v", err)
			assert.Equal(t, tt.export, exportErr.Name)
			assert.Equal(t, tt.reason, exportErr.Reason)
		})
	}

	packed, err := inst.Invoke(ctx, ExportApplyPollEvent, GuestBuffer{})
	require.NoError(t, err)
	assert.Zero(t, packed)
	assert.NoError(t, inst.Err(), "signature mismatches do not break the instance")
}

func TestStubContract_TrapBreaksInstance(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t)

	inst, err := e.LoadContract(ctx, stubContract([]byte{opUnreachable}))
	require.NoError(t, err)
	defer inst.Close(ctx)

	_, err = inst.Init(ctx)
	var trapErr *errors.TrapError
	require.True(t, stdErrors.As(err, &trapErr), "want TrapError, got %v", err)
	assert.Equal(t, ExportInit, trapErr.Export)
	assert.True(t, stdErrors.Is(err, errors.ErrInstanceBroken))

	// Later calls fail fast with the original trap.
	_, err = inst.IncrementVote(ctx, entities.VoteState{Value: 1})
	require.True(t, stdErrors.As(err, &trapErr))
	assert.Equal(t, ExportInit, trapErr.Export)
	assert.Same(t, inst.Err(), trapErr)
}

func TestInstance_CallsAfterClose(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t)

	inst, err := e.LoadContract(ctx, stubContract([]byte{opI32Const, 42}))
	require.NoError(t, err)

	require.NoError(t, inst.Close(ctx))
	require.NoError(t, inst.Close(ctx), "Close is idempotent")

	_, err = inst.Init(ctx)
	assert.ErrorIs(t, err, errors.ErrInstanceClosed)
}

func TestPull_RejectsInvalidPacking(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t, WithGuestOutputLimit(8))

	inst, err := e.LoadContract(ctx, stubContract([]byte{opI32Const, 42}))
	require.NoError(t, err)
	defer inst.Close(ctx)

	_, err = inst.Pull(ctx, ExportApplyPollEvent, 0)
	var allocErr *errors.AllocationError
	assert.True(t, stdErrors.As(err, &allocErr), "a null result means the guest could not allocate its output")

	_, err = inst.Pull(ctx, ExportApplyPollEvent, 5)
	assert.ErrorContains(t, err, "null pointer with length 5")

	_, err = inst.Pull(ctx, ExportApplyPollEvent, uint64(16)<<32|64)
	assert.ErrorContains(t, err, "exceeds limit")
}

func TestGuestBuffer_ReadOutOfRange(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t)

	inst, err := e.LoadContract(ctx, stubContract([]byte{opI32Const, 42}))
	require.NoError(t, err)
	defer inst.Close(ctx)

	buf := GuestBuffer{Ptr: 65530, Len: 16, owner: inst}
	_, err = buf.Read()
	var memErr *errors.MissingMemoryError
	require.True(t, stdErrors.As(err, &memErr))
	assert.Equal(t, "read", memErr.Access)

	empty, err := GuestBuffer{Ptr: 16, Len: 0, owner: inst}.Read()
	require.NoError(t, err)
	assert.Empty(t, empty)
}
