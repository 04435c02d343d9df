// Package log carries guest log records to the host.
//
// The guest side installs a Handler that writes one JSON Record per line to
// WASI stderr. The host side attaches a Forwarder as the module's stderr; it
// reassembles lines, decodes them and re-emits each record on a host slog.Logger.
package log

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"
)

// Handler implements slog.Handler by writing JSON Records to a stream.
type Handler struct {
	opts   handlerConfig
	mu     *sync.Mutex
	attrs  []AttrWire
	groups []string
}

// HandlerOption configures the Handler.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	out       io.Writer
	level     slog.Level
	addSource bool
}

// defaultHandlerConfig returns the default configuration.
func defaultHandlerConfig() handlerConfig {
	return handlerConfig{
		out:   os.Stderr,
		level: slog.LevelInfo,
	}
}

// WithLevel sets the minimum log level to report.
// Records below this level will be filtered on the guest side.
func WithLevel(level slog.Level) HandlerOption {
	return func(c *handlerConfig) {
		c.level = level
	}
}

// WithSource enables reporting of source location (file/line).
func WithSource(enabled bool) HandlerOption {
	return func(c *handlerConfig) {
		c.addSource = enabled
	}
}

// WithOutput sets the stream records are written to. Defaults to os.Stderr.
func WithOutput(w io.Writer) HandlerOption {
	return func(c *handlerConfig) {
		if w != nil {
			c.out = w
		}
	}
}

// NewHandler creates a new Handler with the given options.
func NewHandler(opts ...HandlerOption) *Handler {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Handler{opts: cfg, mu: &sync.Mutex{}}
}

// Enabled reports whether the handler handles records at the given level.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.level
}

// Handle serializes record as a single JSON line.
func (h *Handler) Handle(_ context.Context, record slog.Record) error {
	rec := Record{
		Time:    record.Time,
		Level:   record.Level.String(),
		Message: record.Message,
	}
	rec.Attrs = append(rec.Attrs, h.attrs...)
	prefix := groupPrefix(h.groups)
	record.Attrs(func(attr slog.Attr) bool {
		rec.Attrs = append(rec.Attrs, flattenAttr(prefix, attr)...)
		return true
	})

	if h.opts.addSource && record.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{record.PC})
		frame, _ := frames.Next()
		rec.Source = fmt.Sprintf("%s:%d", frame.File, frame.Line)
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("log: marshal record: %w", err)
	}
	line = append(line, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.opts.out.Write(line)
	return err
}

// WithAttrs returns a new Handler that includes the given attributes.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := h.clone()
	prefix := groupPrefix(h.groups)
	for _, attr := range attrs {
		clone.attrs = append(clone.attrs, flattenAttr(prefix, attr)...)
	}
	return clone
}

// WithGroup returns a new Handler that qualifies later attribute keys with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := h.clone()
	clone.groups = append(clone.groups, name)
	return clone
}

func (h *Handler) clone() *Handler {
	return &Handler{
		opts:   h.opts,
		mu:     h.mu,
		attrs:  append([]AttrWire(nil), h.attrs...),
		groups: append([]string(nil), h.groups...),
	}
}

func groupPrefix(groups []string) string {
	prefix := ""
	for _, g := range groups {
		prefix += g + "."
	}
	return prefix
}
