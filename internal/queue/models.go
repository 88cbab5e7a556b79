package queue

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of an encoding job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// LeaseExpiredReason is recorded as the last error when a claim is reclaimed
// after its owner stopped heartbeating.
const LeaseExpiredReason = "lease expired before the job was resolved"

var allStatuses = []Status{
	StatusQueued,
	StatusInProgress,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns every known job status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts user input into a Status.
func ParseStatus(value string) (Status, error) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	normalized = Status(strings.ReplaceAll(string(normalized), "-", "_"))
	if _, ok := statusSet[normalized]; ok {
		return normalized, nil
	}
	return "", fmt.Errorf("unknown job status %q", value)
}

// IsTerminal reports whether no further transition is expected for the status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one encoding request for a single video.
type Job struct {
	ID             string
	VideoID        string
	InputLocator   string
	Status         Status
	Attempts       int
	MaxAttempts    int
	LastError      string
	LeaseOwner     string
	LeaseExpiresAt *time.Time
	AvailableAt    time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	FinishedAt     *time.Time
}

// AttemptsRemaining reports how many more claims the job may receive.
func (j *Job) AttemptsRemaining() int {
	if j == nil {
		return 0
	}
	if remaining := j.MaxAttempts - j.Attempts; remaining > 0 {
		return remaining
	}
	return 0
}

// Stats is a point-in-time count of jobs per status. It is derived for
// observability and is never used to make scheduling decisions.
type Stats struct {
	Queued     int `json:"queued"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// Count returns the number of jobs in the given status.
func (s Stats) Count(status Status) int {
	switch status {
	case StatusQueued:
		return s.Queued
	case StatusInProgress:
		return s.InProgress
	case StatusCompleted:
		return s.Completed
	case StatusFailed:
		return s.Failed
	default:
		return 0
	}
}

// Resolution reports the effect of Fail on a job.
type Resolution struct {
	// Applied is false when the job was unknown or not in progress.
	Applied  bool
	Status   Status
	Attempts int
	RetryAt  time.Time
}

// Requeued reports whether the job went back to the queue for another attempt.
func (r Resolution) Requeued() bool {
	return r.Applied && r.Status == StatusQueued
}

// DatabaseHealth captures low-level diagnostics about the queue database.
type DatabaseHealth struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    int      `json:"schema_version"`
	TableExists      bool     `json:"table_exists"`
	ColumnsPresent   []string `json:"columns_present"`
	MissingColumns   []string `json:"missing_columns"`
	IntegrityCheck   bool     `json:"integrity_check"`
	TotalJobs        int      `json:"total_jobs"`
	Error            string   `json:"error,omitempty"`
}
