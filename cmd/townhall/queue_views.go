package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"townhall/internal/api"
	"townhall/internal/queue"
)

var titleCaser = cases.Title(language.Und)

func buildQueueStatusRows(stats api.QueueStats) [][]string {
	counts := map[queue.Status]int{
		queue.StatusQueued:     stats.Queued,
		queue.StatusInProgress: stats.InProgress,
		queue.StatusCompleted:  stats.Completed,
		queue.StatusFailed:     stats.Failed,
	}
	rows := make([][]string, 0, len(counts)+1)
	for _, status := range queue.AllStatuses() {
		if counts[status] == 0 {
			continue
		}
		rows = append(rows, []string{formatStatusLabel(string(status)), fmt.Sprintf("%d", counts[status])})
	}
	if len(rows) == 0 {
		return nil
	}
	return append(rows, []string{"Total", fmt.Sprintf("%d", stats.Total)})
}

func buildJobListRows(jobs []api.Job) [][]string {
	if len(jobs) == 0 {
		return nil
	}
	sorted := api.SortJobsNewestFirst(jobs)

	rows := make([][]string, 0, len(sorted))
	for _, job := range sorted {
		rows = append(rows, []string{
			shortID(job.ID),
			job.VideoID,
			formatStatusLabel(job.Status),
			fmt.Sprintf("%d/%d", job.Attempts, job.MaxAttempts),
			formatDisplayTime(job.CreatedAt),
			truncate(job.LastError, 48),
		})
	}
	return rows
}

func jobDetails(job api.Job) [][2]string {
	return [][2]string{
		{"ID", job.ID},
		{"Video", job.VideoID},
		{"Input", job.InputLocator},
		{"Status", formatStatusLabel(job.Status)},
		{"Attempts", fmt.Sprintf("%d of %d", job.Attempts, job.MaxAttempts)},
		{"Last error", job.LastError},
		{"Lease owner", job.LeaseOwner},
		{"Lease expires", formatDisplayTime(job.LeaseExpiresAt)},
		{"Available at", formatDisplayTime(job.AvailableAt)},
		{"Created", formatDisplayTime(job.CreatedAt)},
		{"Finished", formatDisplayTime(job.FinishedAt)},
	}
}

func videoDetails(video api.Video) [][2]string {
	return [][2]string{
		{"Video", video.VideoID},
		{"Status", formatStatusLabel(video.EncodingStatus)},
		{"Degraded", yesNo(video.Degraded)},
		{"Completed", formatDisplayTime(video.EncodingCompletedAt)},
		{"HLS manifest", video.AdaptiveManifestURL},
		{"Progressive", video.ProgressiveURL},
		{"Thumbnail", video.ThumbnailURL},
		{"Failure", video.FailureReason},
	}
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	return titleCaser.String(strings.ReplaceAll(strings.ToLower(status), "_", " "))
}

func formatDisplayTime(value string) string {
	t := api.ParseTime(value)
	if t.IsZero() {
		return strings.TrimSpace(value)
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}

func sortedStatusNames() []string {
	names := make([]string, 0, 4)
	for _, status := range queue.AllStatuses() {
		names = append(names, string(status))
	}
	sort.Strings(names)
	return names
}

func sinceLabel(value string, now time.Time) string {
	t := api.ParseTime(value)
	if t.IsZero() {
		return "-"
	}
	return now.Sub(t).Round(time.Second).String()
}
