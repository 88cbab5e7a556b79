package logging

import (
	"math"
	"strings"
)

// ProgressSampler thins ffmpeg progress output to one line per percentage
// step, plus one line whenever the encode phase changes.
type ProgressSampler struct {
	step  float64
	phase string
	next  float64
}

// NewProgressSampler returns a sampler emitting every step percent. A
// non-positive step means 5.
func NewProgressSampler(step float64) *ProgressSampler {
	if step <= 0 {
		step = 5
	}
	return &ProgressSampler{step: step}
}

// ShouldLog reports whether an update at percent in phase should be logged.
// A negative percent is unknown progress and only emits on a phase change.
// A nil sampler logs everything.
func (s *ProgressSampler) ShouldLog(percent float64, phase string) bool {
	if s == nil {
		return true
	}
	changed := false
	if phase = strings.TrimSpace(phase); phase != "" && phase != s.phase {
		s.phase = phase
		s.next = 0
		changed = true
	}
	if percent < 0 || percent < s.next {
		return changed
	}
	s.next = (math.Floor(math.Min(percent, 100)/s.step) + 1) * s.step
	return true
}

// Reset forgets the current phase, e.g. between jobs.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.phase = ""
	s.next = 0
}
