package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\x1b[0m"
	ansiDim    = "\x1b[2m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

// consoleHandler writes one human-readable line per record:
//
//	2026-01-02T15:04:05Z INFO worker: job completed job_id=... video_id=... duration=2s
//
// The innermost component attribute becomes the prefix. Job and video ids
// are listed before any other field.
type consoleHandler struct {
	out       *lockedWriter
	level     slog.Leveler
	addSource bool
	color     bool

	group     string // dotted prefix for keys, "" at top level
	component string
	fields    []field
}

type field struct {
	key string
	val slog.Value
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) write(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.w.Write(p)
	return err
}

func newConsoleHandler(w io.Writer, level slog.Leveler, addSource, color bool) slog.Handler {
	return &consoleHandler{out: &lockedWriter{w: w}, level: level, addSource: addSource, color: color}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.fields = slices.Clone(h.fields)
	for _, a := range attrs {
		next.add(h.group, a)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = h.group + name + "."
	return &next
}

// add flattens a into h.fields, capturing the component attribute.
func (h *consoleHandler) add(prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, child := range a.Value.Group() {
			h.add(prefix, child)
		}
		return
	}
	if prefix == "" && a.Key == FieldComponent {
		h.component = plainString(a.Value)
		return
	}
	if a.Key == "" {
		return
	}
	h.fields = append(h.fields, field{key: prefix + a.Key, val: a.Value})
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	if r.Level < h.level.Level() {
		return nil
	}
	line := *h
	line.fields = slices.Clone(h.fields)
	r.Attrs(func(a slog.Attr) bool {
		line.add(h.group, a)
		return true
	})
	slices.SortStableFunc(line.fields, func(a, b field) int { return keyRank(a.key) - keyRank(b.key) })

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var sb strings.Builder
	sb.WriteString(h.tint(ansiDim, ts.UTC().Format(time.RFC3339)))
	sb.WriteString(" " + h.tint(levelColor(r.Level), levelLabel(r.Level)) + " ")
	if line.component != "" {
		sb.WriteString(h.tint(ansiCyan, line.component+":") + " ")
	}
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		msg = "(no message)"
	}
	sb.WriteString(msg)
	if h.addSource {
		if src := r.Source(); src != nil {
			sb.WriteString(h.tint(ansiDim, fmt.Sprintf(" [%s:%d]", filepath.Base(src.File), src.Line)))
		}
	}
	for _, f := range line.fields {
		sb.WriteString(" " + h.tint(ansiDim, f.key+"=") + formatValue(f.val))
	}
	sb.WriteByte('\n')
	return h.out.write([]byte(sb.String()))
}

func (h *consoleHandler) tint(code, s string) string {
	if !h.color || code == "" {
		return s
	}
	return code + s + ansiReset
}

func keyRank(key string) int {
	switch key {
	case FieldJobID:
		return 0
	case FieldVideoID:
		return 1
	default:
		return 2
	}
}

func plainString(v slog.Value) string {
	if v.Kind() == slog.KindString {
		return v.String()
	}
	return strings.Trim(formatValue(v), `"`)
}

// formatValue renders v in logfmt style, quoting strings that contain
// spaces, quotes, or '='.
func formatValue(v slog.Value) string {
	v = v.Resolve()
	var s string
	switch v.Kind() {
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = fmt.Sprint(v.Any())
		}
	default:
		s = v.String()
	}
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

var levelStyles = []struct {
	min   slog.Level
	label string
	color string
}{
	{slog.LevelError, "ERROR", ansiRed},
	{slog.LevelWarn, "WARN", ansiYellow},
	{slog.LevelInfo, "INFO", ""},
}

func levelLabel(level slog.Level) string {
	for _, s := range levelStyles {
		if level >= s.min {
			return s.label
		}
	}
	return "DEBUG"
}

func levelColor(level slog.Level) string {
	for _, s := range levelStyles {
		if level >= s.min {
			return s.color
		}
	}
	return ansiDim
}
