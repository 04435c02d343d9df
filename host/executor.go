package host

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/reglet-dev/votepoll/domain/errors"
	"github.com/reglet-dev/votepoll/log"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/multierr"
)

// guestLogLevelEnv is read by the guest to pick its minimum log level.
const guestLogLevelEnv = "VOTEPOLL_GUEST_LOG_LEVEL"

// Executor owns a wazero runtime and loads contract instances into it.
type Executor struct {
	runtime wazero.Runtime
	wasi    api.Closer
	config  executorConfig
	seq     atomic.Uint64
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(ctx context.Context, opts ...Option) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	rtConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(cfg.memoryLimitPages).
		WithCloseOnContextDone(cfg.closeOnContextDone)
	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)

	wasi, err := wasi_snapshot_preview1.Instantiate(ctx, rt)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to instantiate WASI: %w", err), rt.Close(ctx))
	}

	return &Executor{runtime: rt, wasi: wasi, config: cfg}, nil
}

// Close releases resources held by the executor, including every instance
// it loaded.
func (e *Executor) Close(ctx context.Context) error {
	return multierr.Combine(e.wasi.Close(ctx), e.runtime.Close(ctx))
}

// LoadContractFile reads a module from path and loads it.
func (e *Executor) LoadContractFile(ctx context.Context, path string) (*Instance, error) {
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, &errors.LoadError{Path: path, Err: err}
	}
	inst, err := e.LoadContract(ctx, wasmBytes)
	if err != nil {
		var loadErr *errors.LoadError
		if stdErrors.As(err, &loadErr) && loadErr.Path == "" {
			loadErr.Path = path
		}
		return nil, err
	}
	return inst, nil
}

// LoadContract compiles, validates and instantiates a contract module.
//
// Invalid bytes yield *errors.LoadError. A module lacking linear memory or a
// required export yields *errors.MissingMemoryError or *errors.MissingExportError.
// A failure while instantiating or running the module's initializer yields
// *errors.InstantiationError.
func (e *Executor) LoadContract(ctx context.Context, wasmBytes []byte) (*Instance, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, &errors.LoadError{Err: err}
	}

	if err := validateContract(compiled); err != nil {
		return nil, multierr.Append(err, compiled.Close(ctx))
	}

	name := fmt.Sprintf("votepoll-%d", e.seq.Add(1))
	logger := e.config.logger.With("module", name)
	output := log.NewForwarder(e.config.logger, name)

	modConfig := wazero.NewModuleConfig().
		WithName(name).
		WithStdout(output).
		WithStderr(output).
		WithStartFunctions()
	if logger.Enabled(ctx, slog.LevelDebug) {
		modConfig = modConfig.WithEnv(guestLogLevelEnv, "debug")
	}

	mod, err := e.runtime.InstantiateModule(ctx, compiled, modConfig)
	if err != nil {
		return nil, multierr.Append(&errors.InstantiationError{Err: err}, compiled.Close(ctx))
	}

	// Reactor modules built with -buildmode=c-shared initialize the Go runtime here.
	if initFn := mod.ExportedFunction(exportInitialize); initFn != nil {
		if _, err := initFn.Call(ctx); err != nil {
			output.Flush()
			return nil, multierr.Combine(
				&errors.InstantiationError{Err: fmt.Errorf("failed to call %s: %w", exportInitialize, err)},
				mod.Close(ctx),
				compiled.Close(ctx),
			)
		}
	}

	logger.Debug("contract loaded", "size", len(wasmBytes))
	return newInstance(mod, compiled, output, logger, e.config), nil
}
