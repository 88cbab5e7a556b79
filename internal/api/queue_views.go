package api

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// SortJobsNewestFirst returns a copy of jobs ordered by creation time, most
// recent first. Jobs created in the same instant fall back to descending ID.
func SortJobsNewestFirst(jobs []Job) []Job {
	if len(jobs) == 0 {
		return nil
	}
	out := slices.Clone(jobs)
	slices.SortStableFunc(out, func(a, b Job) int {
		if c := ParseTime(b.CreatedAt).Compare(ParseTime(a.CreatedAt)); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

// ParseTime reads a timestamp as written by the queue and video stores. Blank
// or unparseable input yields the zero time.
func ParseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
