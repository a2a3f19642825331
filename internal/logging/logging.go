// Package logging configures log/slog for the whole process. Package-level
// loggers are created with L at init time and start writing through the
// configured handler once Setup or Init runs.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync/atomic"
)

// Structured field names shared across packages.
const (
	KeyComponent  = "component"
	KeyDevice     = "device"
	KeyBuffer     = "buffer"
	KeyDurationMs = "durationMs"
	KeyError      = "error"
	KeySession    = "session"
)

// deferredHandler forwards every record to whichever handler was installed
// last, replaying its WithAttrs and WithGroup calls in the order they were
// made.
type deferredHandler struct {
	root *atomic.Pointer[slog.Handler]
	ops  []func(slog.Handler) slog.Handler
}

func (h *deferredHandler) resolve() slog.Handler {
	out := *h.root.Load()
	for _, op := range h.ops {
		out = op(out)
	}
	return out
}

func (h *deferredHandler) derive(op func(slog.Handler) slog.Handler) *deferredHandler {
	return &deferredHandler{root: h.root, ops: append(slices.Clip(h.ops), op)}
}

func (h *deferredHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.resolve().Enabled(ctx, level)
}

func (h *deferredHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.resolve().Handle(ctx, r)
}

func (h *deferredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	attrs = slices.Clone(attrs)
	return h.derive(func(b slog.Handler) slog.Handler { return b.WithAttrs(attrs) })
}

func (h *deferredHandler) WithGroup(name string) slog.Handler {
	return h.derive(func(b slog.Handler) slog.Handler { return b.WithGroup(name) })
}

// Diagnostics go to stderr; stdout is reserved for `config` and `probe`.
var (
	installed atomic.Pointer[slog.Handler]
	root      = &deferredHandler{root: &installed}
	logger    = slog.New(root)
)

func init() {
	install(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
}

func install(h slog.Handler) {
	installed.Store(&h)
}

// Init installs a handler writing format ("text" or "json") at level to
// output, or to stderr when output is nil.
func Init(format, level string, output io.Writer) {
	if output == nil {
		output = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "json") {
		install(slog.NewJSONHandler(output, opts))
	} else {
		install(slog.NewTextHandler(output, opts))
	}
}

// Setup logs to stderr, and also to a rotating file when file is set.
// The returned closer releases the file; it is a no-op without one.
func Setup(format, level, file string) (io.Closer, error) {
	if file == "" {
		Init(format, level, os.Stderr)
		return nopCloser{}, nil
	}
	rw, err := NewRotatingWriter(file, 10, 3)
	if err != nil {
		return nil, err
	}
	Init(format, level, io.MultiWriter(os.Stderr, rw))
	return rw, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// L returns a logger tagged with the given component name.
func L(component string) *slog.Logger {
	return logger.With(slog.String(KeyComponent, component))
}

// WithDevice returns a child logger carrying the capture device path.
func WithDevice(l *slog.Logger, device string) *slog.Logger {
	return l.With(slog.String(KeyDevice, device))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
