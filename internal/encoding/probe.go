package encoding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"townhall/internal/services"
)

// ProbeResult is the subset of ffprobe's JSON output the encoder relies on.
type ProbeResult struct {
	Streams []ProbeStream `json:"streams"`
	Format  ProbeFormat   `json:"format"`
}

// ProbeStream describes a single stream in the source container.
type ProbeStream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// ProbeFormat captures container-level metadata.
type ProbeFormat struct {
	Duration   string `json:"duration"`
	FormatName string `json:"format_name"`
}

// VideoHeight returns the height of the first video stream, or 0.
func (r ProbeResult) VideoHeight() int {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return stream.Height
		}
	}
	return 0
}

// HasVideo reports whether the container carries at least one video stream.
func (r ProbeResult) HasVideo() bool {
	return r.count("video") > 0
}

// HasAudio reports whether the container carries at least one audio stream.
func (r ProbeResult) HasAudio() bool {
	return r.count("audio") > 0
}

// DurationSeconds returns the container duration, or 0 when unknown.
func (r ProbeResult) DurationSeconds() float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(r.Format.Duration), 64)
	if err != nil || value < 0 {
		return 0
	}
	return value
}

func (r ProbeResult) count(codecType string) int {
	n := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, codecType) {
			n++
		}
	}
	return n
}

func (f *FFmpeg) probe(ctx context.Context, path string) (ProbeResult, error) {
	cmd := commandContext(ctx, f.ffprobeBin,
		"-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if isInvalidInput(detail) {
			return ProbeResult{}, services.Wrap(services.ErrPermanent, "encoding", "probe", detail, err)
		}
		return ProbeResult{}, services.Wrap(services.ErrExternalTool, "encoding", "probe", detail, err)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return ProbeResult{}, services.Wrap(services.ErrExternalTool, "encoding", "probe",
			fmt.Sprintf("parse ffprobe output for %s", path), err)
	}
	if !result.HasVideo() {
		return result, services.Wrap(services.ErrPermanent, "encoding", "probe", "source has no video stream", nil)
	}
	return result, nil
}

var invalidInputMarkers = []string{
	"invalid data found when processing input",
	"moov atom not found",
	"does not contain any stream",
}

func isInvalidInput(detail string) bool {
	lower := strings.ToLower(detail)
	for _, marker := range invalidInputMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
