package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"townhall/internal/api"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

var statusBadges = map[statusKind]struct{ tag, color string }{
	statusInfo:  {"INFO", ansiBlue},
	statusOK:    {"OK", ansiGreen},
	statusWarn:  {"WARN", ansiYellow},
	statusError: {"ERROR", ansiRed},
}

func paint(s, color string, colorize bool) string {
	if !colorize || color == "" {
		return s
	}
	return color + s + ansiReset
}

// renderStatusLine formats "  Label:   [TAG] message" with the label padded
// to statusLabelWidth.
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	badge, ok := statusBadges[kind]
	if !ok {
		badge = statusBadges[statusInfo]
	}
	body := "[" + badge.tag + "]"
	if message != "" {
		body += " " + message
	}
	line := statusIndent + fmt.Sprintf("%-*s", statusLabelWidth, label+":") + " " + body
	return paint(line, badge.color, colorize)
}

func renderSectionHeader(title string, colorize bool) []string {
	heading := "== " + strings.TrimSpace(title) + " =="
	return []string{
		paint(heading, ansiBlue, colorize),
		paint(strings.Repeat("-", len(heading)), ansiBlue, colorize),
	}
}

// dependencyLines renders an overall summary, then one line per dependency,
// then the names of any missing required dependencies.
func dependencyLines(deps []api.DependencyStatus, colorize bool) []string {
	var required, optional []string
	for _, dep := range deps {
		switch {
		case dep.Available:
		case dep.Optional:
			optional = append(optional, dep.Name)
		default:
			required = append(required, dep.Name)
		}
	}

	summaryKind, summary := statusOK, "all dependencies ready"
	if len(optional) > 0 {
		summaryKind, summary = statusWarn, "optional dependencies unavailable"
	}
	if len(required) > 0 {
		summaryKind, summary = statusError, fmt.Sprintf("%d required dependency issue(s)", len(required))
	}

	lines := []string{renderStatusLine("Summary", summaryKind, summary, colorize)}
	for _, dep := range deps {
		lines = append(lines, dependencyLine(dep, colorize))
	}
	if len(required) > 0 {
		lines = append(lines, statusIndent+"Missing dependencies: "+strings.Join(required, ", "))
	}
	return lines
}

func dependencyLine(dep api.DependencyStatus, colorize bool) string {
	if dep.Available {
		msg := "Ready"
		if dep.Command != "" {
			msg += " (" + dep.Command + ")"
		}
		return renderStatusLine(dep.Name, statusOK, msg, colorize)
	}
	detail := dep.Detail
	if detail == "" {
		detail = "not available"
	}
	kind := statusError
	if dep.Optional {
		kind = statusWarn
	}
	return renderStatusLine(dep.Name, kind, detail, colorize)
}

// shouldColorize is true only for terminals, and never when NO_COLOR is set.
func shouldColorize(w io.Writer) bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
