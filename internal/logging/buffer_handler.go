package logging

import (
	"context"
	"log/slog"
	"time"
)

// LogCallback receives every buffered entry, sequence number included.
type LogCallback func(entry LogEntry)

// defaultModule labels records from loggers without a module attribute.
const defaultModule = "mfweb"

// bufferSink turns records into LogEntry values for the ring buffer and the
// callback. Sinks are resolved per record, so a logger created before
// Initialize starts buffering once it runs.
type bufferSink struct {
	level  slog.Leveler
	module string
	prefix string
	attrs  map[string]any
}

func newBufferSink(level slog.Leveler) *bufferSink {
	return &bufferSink{level: level, module: defaultModule}
}

func (h *bufferSink) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *bufferSink) Handle(_ context.Context, r slog.Record) error {
	buffer, callback := currentSinks()
	if buffer == nil && callback == nil {
		return nil
	}

	entry := LogEntry{
		Timestamp:  r.Time,
		Level:      levelName(r.Level),
		Module:     h.module,
		Message:    r.Message,
		Attributes: make(map[string]any, len(h.attrs)+r.NumAttrs()),
	}
	for k, v := range h.attrs {
		entry.Attributes[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		if h.prefix == "" && a.Key == "module" {
			entry.Module = a.Value.String()
			return true
		}
		flatten(entry.Attributes, h.prefix, a)
		return true
	})

	if buffer != nil {
		entry = buffer.Append(entry)
	}
	if callback != nil {
		callback(entry)
	}
	return nil
}

func (h *bufferSink) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := *h
	out.attrs = make(map[string]any, len(h.attrs)+len(attrs))
	for k, v := range h.attrs {
		out.attrs[k] = v
	}
	for _, a := range attrs {
		if h.prefix == "" && a.Key == "module" {
			out.module = a.Value.String()
			continue
		}
		flatten(out.attrs, h.prefix, a)
	}
	return &out
}

func (h *bufferSink) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	out := *h
	out.prefix = h.prefix + name + "."
	return &out
}

// flatten stores a under prefix+key, expanding groups into dotted keys.
func flatten(dst map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := prefix + a.Key

	switch a.Value.Kind() {
	case slog.KindGroup:
		inner := prefix
		if a.Key != "" {
			inner = key + "."
		}
		for _, ga := range a.Value.Group() {
			flatten(dst, inner, ga)
		}
	case slog.KindTime:
		dst[key] = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		dst[key] = a.Value.Duration().String()
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			dst[key] = err.Error()
			return
		}
		dst[key] = a.Value.Any()
	default:
		dst[key] = a.Value.Any()
	}
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	}
	return "debug"
}
