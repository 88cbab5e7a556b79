package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"townhall/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string // "console" (default) or "json"
	// OutputPaths are file paths or the names "stdout" and "stderr".
	OutputPaths []string
	Development bool
	NoColor     bool
}

// sink is one destination. Terminal sinks may be colorized.
type sink struct {
	w        io.Writer
	terminal bool
}

// New builds a logger writing to every output path. Each sink gets its own
// handler so a terminal can be colorized while the log file stays plain.
func New(opts Options) (*slog.Logger, error) {
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	switch format {
	case "":
		format = "console"
	case "console", "json":
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	level := new(slog.LevelVar)
	level.Set(parseLevel(opts.Level))
	withSource := opts.Development || level.Level() <= slog.LevelDebug

	sinks, err := openSinks(opts.OutputPaths)
	if err != nil {
		return nil, err
	}
	handlers := make([]slog.Handler, len(sinks))
	for i, s := range sinks {
		if format == "json" {
			handlers[i] = newJSONHandler(s.w, level, withSource)
		} else {
			handlers[i] = newConsoleHandler(s.w, level, withSource, s.terminal && !opts.NoColor)
		}
	}
	return slog.New(newFanoutHandler(handlers...)), nil
}

// NewFromConfig logs to stdout and, when paths.log_dir is set, to the daemon
// log file as well.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{})
	}
	paths := []string{"stdout"}
	if cfg.Paths.LogDir != "" {
		paths = append(paths, cfg.DaemonLogPath())
	}
	return New(Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, OutputPaths: paths})
}

func parseLevel(raw string) slog.Level {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// openSinks resolves paths to writers, skipping blanks and duplicates. An
// empty result falls back to stdout.
func openSinks(paths []string) ([]sink, error) {
	var sinks []sink
	seen := make(map[string]bool)
	for _, raw := range paths {
		path := strings.TrimSpace(raw)
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		s, err := openSink(path)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if len(sinks) == 0 {
		return []sink{stdSink(os.Stdout)}, nil
	}
	return sinks, nil
}

func openSink(path string) (sink, error) {
	switch path {
	case "stdout":
		return stdSink(os.Stdout), nil
	case "stderr":
		return stdSink(os.Stderr), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return sink{}, fmt.Errorf("ensure log dir for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return sink{}, fmt.Errorf("open log file %s: %w", path, err)
	}
	return sink{w: f}, nil
}

func stdSink(f *os.File) sink {
	fd := f.Fd()
	return sink{w: f, terminal: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)}
}

// newJSONHandler emits ts/level/msg keys with UTC RFC3339 times, lower-case
// levels, and file:line sources.
func newJSONHandler(w io.Writer, level slog.Leveler, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		AddSource:   addSource,
		ReplaceAttr: jsonAttr,
	})
}

func jsonAttr(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		attr.Key = "ts"
		if attr.Value.Kind() == slog.KindTime {
			attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339))
		}
	case slog.LevelKey:
		attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
	case slog.SourceKey:
		if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
			attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
		}
	}
	return attr
}
