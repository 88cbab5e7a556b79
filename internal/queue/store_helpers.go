package queue

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

var jobColumns = strings.Join(jobTableColumns, ", ")

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id             string
		videoID        string
		inputLocator   string
		statusStr      string
		attempts       int
		maxAttempts    int
		lastError      sql.NullString
		leaseOwner     sql.NullString
		leaseExpiresAt sql.NullString
		availableRaw   sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
		finishedRaw    sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&videoID,
		&inputLocator,
		&statusStr,
		&attempts,
		&maxAttempts,
		&lastError,
		&leaseOwner,
		&leaseExpiresAt,
		&availableRaw,
		&createdRaw,
		&updatedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:             id,
		VideoID:        videoID,
		InputLocator:   inputLocator,
		Status:         Status(statusStr),
		Attempts:       attempts,
		MaxAttempts:    maxAttempts,
		LastError:      lastError.String,
		LeaseOwner:     leaseOwner.String,
		LeaseExpiresAt: parseNullableTime(leaseExpiresAt),
		FinishedAt:     parseNullableTime(finishedRaw),
	}
	if t, err := parseTimeString(availableRaw.String); err == nil {
		job.AvailableAt = t
	}
	if t, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = t
	}
	return job, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}

func stringArgs(values []string) []any {
	args := make([]any, 0, len(values))
	for _, v := range values {
		args = append(args, v)
	}
	return args
}
