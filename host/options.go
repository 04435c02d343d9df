package host

import (
	"log/slog"
)

// DefaultMemoryLimitPages caps guest linear memory at 1 GiB (64 KiB pages).
const DefaultMemoryLimitPages uint32 = 16384

// DefaultGuestOutputLimit caps the size of a single buffer read back from the guest.
const DefaultGuestOutputLimit = 16 * 1024 * 1024

// maxMemoryLimitPages is the wasm32 address-space limit.
const maxMemoryLimitPages uint32 = 65536

type executorConfig struct {
	logger             *slog.Logger
	memoryLimitPages   uint32
	guestOutputLimit   int
	closeOnContextDone bool
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		logger:             slog.Default(),
		memoryLimitPages:   DefaultMemoryLimitPages,
		guestOutputLimit:   DefaultGuestOutputLimit,
		closeOnContextDone: true,
	}
}

// Option defines a functional option for configuring the Executor.
type Option func(*executorConfig)

// WithLogger sets the logger used for host diagnostics and forwarded guest output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *executorConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMemoryLimitPages caps each guest's linear memory. Zero is ignored and
// values above 65536 are clamped.
func WithMemoryLimitPages(pages uint32) Option {
	return func(c *executorConfig) {
		if pages == 0 {
			return
		}
		if pages > maxMemoryLimitPages {
			pages = maxMemoryLimitPages
		}
		c.memoryLimitPages = pages
	}
}

// WithGuestOutputLimit caps the length of any buffer the host reads back.
// Zero or negative limits are ignored.
func WithGuestOutputLimit(limit int) Option {
	return func(c *executorConfig) {
		if limit > 0 {
			c.guestOutputLimit = limit
		}
	}
}

// WithCloseOnContextDone makes guest calls abort when their context is done.
// Enabled by default. An aborted call leaves the instance broken.
func WithCloseOnContextDone(enabled bool) Option {
	return func(c *executorConfig) {
		c.closeOnContextDone = enabled
	}
}
