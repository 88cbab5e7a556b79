package encoding

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"townhall/internal/logging"
)

// Progress is one snapshot of an ffmpeg run reported through -progress.
type Progress struct {
	Phase   string
	Percent float64 // negative when the source duration is unknown
	OutTime time.Duration
	Speed   float64
	Done    bool
}

// ETA estimates the remaining wall-clock time from the encode speed.
func (p Progress) ETA(total time.Duration) time.Duration {
	if p.Speed <= 0 || total <= 0 || p.OutTime >= total {
		return 0
	}
	return time.Duration(float64(total-p.OutTime) / p.Speed)
}

// progressParser folds ffmpeg's key=value progress stream into snapshots. A
// snapshot is emitted on every "progress=" line, which terminates a block.
type progressParser struct {
	phase   string
	total   time.Duration
	current Progress
}

func newProgressParser(phase string, total time.Duration) *progressParser {
	return &progressParser{phase: phase, total: total, current: Progress{Phase: phase, Percent: -1}}
}

func (p *progressParser) Feed(line string) (Progress, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return Progress{}, false
	}
	value = strings.TrimSpace(value)
	switch key {
	case "out_time_us", "out_time_ms":
		// Both keys carry microseconds.
		if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
			p.current.OutTime = time.Duration(us) * time.Microsecond
		}
	case "speed":
		if speed, err := strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64); err == nil {
			p.current.Speed = speed
		}
	case "progress":
		p.current.Done = value == "end"
		p.current.Percent = p.percent()
		snapshot := p.current
		return snapshot, true
	}
	return Progress{}, false
}

func (p *progressParser) percent() float64 {
	if p.current.Done {
		return 100
	}
	if p.total <= 0 {
		return -1
	}
	pct := float64(p.current.OutTime) / float64(p.total) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

func logProgress(logger *slog.Logger, sampler *logging.ProgressSampler, update Progress, total time.Duration) {
	if !sampler.ShouldLog(update.Percent, update.Phase) {
		return
	}
	attrs := []logging.Attr{
		logging.String("progress_phase", update.Phase),
		logging.String("progress_message", progressMessageText(update, total)),
	}
	if update.Percent >= 0 {
		attrs = append(attrs, logging.Float64("progress_percent", update.Percent))
	}
	if eta := update.ETA(total); eta > 0 {
		attrs = append(attrs, logging.Duration("progress_eta", eta))
	}
	logger.Info("encode progress", logging.Args(attrs...)...)
}

func progressMessageText(update Progress, total time.Duration) string {
	label := formatPhaseLabel(update.Phase)
	if update.Percent < 0 {
		return fmt.Sprintf("%s %s encoded", label, formatDuration(update.OutTime))
	}
	base := fmt.Sprintf("%s %.1f%%", label, update.Percent)
	extras := make([]string, 0, 2)
	if eta := update.ETA(total); eta > 0 {
		extras = append(extras, "ETA "+formatDuration(eta))
	}
	if update.Speed > 0 {
		extras = append(extras, fmt.Sprintf("@ %.1fx", update.Speed))
	}
	if len(extras) == 0 {
		return base
	}
	return fmt.Sprintf("%s (%s)", base, strings.Join(extras, ", "))
}

func formatPhaseLabel(phase string) string {
	phase = strings.TrimSpace(phase)
	if phase == "" {
		return "Progress"
	}
	parts := strings.FieldsFunc(phase, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for i, part := range parts {
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, " ")
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	parts := make([]string, 0, 3)
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || hours > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 || (hours == 0 && minutes == 0) {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}
	return strings.Join(parts, "")
}
