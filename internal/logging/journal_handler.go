package logging

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// SyslogIdentifier tags every journal entry written by this process.
const SyslogIdentifier = "mfweb"

// journalSink writes records to the systemd journal. Attribute keys become
// upper-case journal fields; the module lands in MFWEB_MODULE so
// `journalctl MFWEB_MODULE=hls` filters one component.
type journalSink struct {
	level  slog.Leveler
	prefix string
	fields map[string]string
}

func newJournalSink(level slog.Leveler) *journalSink {
	return &journalSink{level: level, fields: map[string]string{}}
}

func (h *journalSink) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *journalSink) Handle(_ context.Context, r slog.Record) error {
	fields := make(map[string]string, len(h.fields)+r.NumAttrs()+1)
	for k, v := range h.fields {
		fields[k] = v
	}
	fields["SYSLOG_IDENTIFIER"] = SyslogIdentifier
	r.Attrs(func(a slog.Attr) bool {
		h.add(fields, h.prefix, a)
		return true
	})
	return journal.Send(r.Message, priority(r.Level), fields)
}

func (h *journalSink) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := *h
	out.fields = make(map[string]string, len(h.fields)+len(attrs))
	for k, v := range h.fields {
		out.fields[k] = v
	}
	for _, a := range attrs {
		h.add(out.fields, h.prefix, a)
	}
	return &out
}

func (h *journalSink) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	out := *h
	out.prefix = h.prefix + name + "_"
	return &out
}

func (h *journalSink) add(fields map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if prefix == "" && a.Key == "module" {
		fields["MFWEB_MODULE"] = a.Value.String()
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner = prefix + a.Key + "_"
		}
		for _, ga := range a.Value.Group() {
			h.add(fields, inner, ga)
		}
		return
	}
	fields[journalField(prefix+a.Key)] = journalValue(a.Value)
}

// journalField maps a key onto the journal's [A-Z0-9_] alphabet. Fields may
// not start with an underscore or a digit.
func journalField(key string) string {
	var b strings.Builder
	for _, c := range strings.ToUpper(key) {
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		} else {
			b.WriteByte('_')
		}
	}
	field := strings.TrimLeft(b.String(), "_0123456789")
	if field == "" {
		return "ATTR"
	}
	return field
}

func journalValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	}
	return v.String()
}

func priority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	}
	return journal.PriDebug
}
