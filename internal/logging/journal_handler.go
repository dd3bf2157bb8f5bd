package logging

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// JournalHandler sends records to the systemd journal with every attribute
// as an upper-case structured field, so `journalctl -t vidbuf DEVICE=...`
// filters work.
type JournalHandler struct {
	identifier string
	level      slog.Leveler
	attrs      []slog.Attr
	groups     []string
}

// NewJournalHandler creates a journal handler tagged with identifier.
func NewJournalHandler(identifier string, level slog.Leveler) *JournalHandler {
	return &JournalHandler{identifier: identifier, level: level}
}

// Enabled implements slog.Handler.
func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := journalFields(h.identifier, h.attrs, h.groups, r)
	return journal.Send(r.Message, priority(r.Level), fields)
}

// WithAttrs implements slog.Handler.
func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(slices.Clone(h.attrs), attrs...)
	return &next
}

// WithGroup implements slog.Handler.
func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(slices.Clone(h.groups), name)
	return &next
}

// journalFields flattens the handler and record attributes.
// MESSAGE and PRIORITY are set by journal.Send itself.
func journalFields(identifier string, attrs []slog.Attr, groups []string, r slog.Record) map[string]string {
	fields := map[string]string{"SYSLOG_IDENTIFIER": identifier}
	for _, attr := range attrs {
		addField(fields, attr, groups)
	}
	r.Attrs(func(attr slog.Attr) bool {
		addField(fields, attr, groups)
		return true
	})
	return fields
}

func priority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

func addField(fields map[string]string, attr slog.Attr, groups []string) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	key := attr.Key
	if len(groups) > 0 {
		key = strings.Join(groups, "_") + "_" + key
	}
	key = strings.ToUpper(key)

	v := attr.Value.Resolve()
	switch v.Kind() {
	case slog.KindInt64:
		fields[key] = strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		fields[key] = strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		fields[key] = strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		fields[key] = strconv.FormatBool(v.Bool())
	case slog.KindTime:
		fields[key] = v.Time().Format(time.RFC3339Nano)
	case slog.KindGroup:
		nested := append(slices.Clone(groups), attr.Key)
		for _, a := range v.Group() {
			addField(fields, a, nested)
		}
	default:
		fields[key] = v.String()
	}
}

// IsJournalAvailable reports whether journald is listening.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
