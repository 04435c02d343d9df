package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// SourceGuest is the value of the "source" attribute on forwarded records.
const SourceGuest = "guest"

// Forwarder is an io.Writer that re-emits guest log lines on a host logger.
// Lines holding a JSON Record keep their level, message and attributes; any
// other output is logged verbatim at info level.
type Forwarder struct {
	logger *slog.Logger
	line   *BoundedBuffer
	module string
	mu     sync.Mutex
}

// NewForwarder creates a Forwarder that logs to logger, tagging each record
// with the given module name. A nil logger uses slog.Default().
func NewForwarder(logger *slog.Logger, module string) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		logger: logger,
		line:   NewBoundedBuffer(DefaultMaxLineSize),
		module: module,
	}
}

// Write implements io.Writer. Complete lines are emitted immediately; a
// trailing partial line is held until its newline arrives or Flush is called.
func (f *Forwarder) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rest := p
	for len(rest) > 0 {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			_, _ = f.line.Write(rest)
			break
		}
		_, _ = f.line.Write(rest[:i])
		f.emitLocked()
		rest = rest[i+1:]
	}
	return len(p), nil
}

// Flush emits any buffered partial line.
func (f *Forwarder) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.line.Len() > 0 {
		f.emitLocked()
	}
}

func (f *Forwarder) emitLocked() {
	defer f.line.Reset()

	raw := bytes.TrimSpace(f.line.Bytes())
	if len(raw) == 0 {
		return
	}

	attrs := []slog.Attr{slog.String("source", SourceGuest)}
	if f.module != "" {
		attrs = append(attrs, slog.String("module", f.module))
	}
	if f.line.Truncated {
		attrs = append(attrs, slog.Bool("truncated", true), slog.Int("dropped_bytes", f.line.Dropped))
	}

	var rec Record
	if raw[0] != '{' || json.Unmarshal(raw, &rec) != nil || rec.Level == "" {
		f.logger.LogAttrs(context.Background(), slog.LevelInfo, string(raw), attrs...)
		return
	}

	for _, wire := range rec.Attrs {
		attrs = append(attrs, toSlogAttr(wire))
	}
	if rec.Source != "" {
		attrs = append(attrs, slog.String("guest_source", rec.Source))
	}
	f.logger.LogAttrs(context.Background(), parseLevel(rec.Level), rec.Message, attrs...)
}
