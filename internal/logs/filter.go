package logs

import (
	"strings"

	"townhall/internal/logging"
)

// Filter keeps lines that mention a job or video id. Empty fields match
// everything.
type Filter struct {
	JobID   string
	VideoID string
}

// Empty reports whether the filter matches every line.
func (f Filter) Empty() bool {
	return strings.TrimSpace(f.JobID) == "" && strings.TrimSpace(f.VideoID) == ""
}

// Match reports whether line carries every requested id, in console
// (key=value) or JSON ("key":"value") form.
func (f Filter) Match(line string) bool {
	return hasField(line, logging.FieldJobID, f.JobID) && hasField(line, logging.FieldVideoID, f.VideoID)
}

// Apply returns the matching lines.
func (f Filter) Apply(lines []string) []string {
	if f.Empty() {
		return lines
	}
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if f.Match(line) {
			out = append(out, line)
		}
	}
	return out
}

func hasField(line, key, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return true
	}
	for _, token := range []string{
		key + "=" + value,
		key + "=\"" + value + "\"",
		"\"" + key + "\":\"" + value + "\"",
	} {
		idx := strings.Index(line, token)
		if idx < 0 {
			continue
		}
		end := idx + len(token)
		if end == len(line) || !isIDByte(line[end]) {
			return true
		}
	}
	return false
}

func isIDByte(b byte) bool {
	return b == '-' || b == '_' || b == '.' ||
		(b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
