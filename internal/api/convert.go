package api

import (
	"time"

	"townhall/internal/deps"
	"townhall/internal/queue"
	"townhall/internal/videos"
	"townhall/internal/worker"
)

// FromJob converts a queue job to its transport form.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}
	return Job{
		ID:             job.ID,
		VideoID:        job.VideoID,
		InputLocator:   job.InputLocator,
		Status:         string(job.Status),
		Attempts:       job.Attempts,
		MaxAttempts:    job.MaxAttempts,
		LastError:      job.LastError,
		LeaseOwner:     job.LeaseOwner,
		LeaseExpiresAt: formatTimePtr(job.LeaseExpiresAt),
		AvailableAt:    formatTime(job.AvailableAt),
		CreatedAt:      formatTime(job.CreatedAt),
		UpdatedAt:      formatTime(job.UpdatedAt),
		FinishedAt:     formatTimePtr(job.FinishedAt),
	}
}

// FromJobs converts a slice of queue jobs.
func FromJobs(jobs []*queue.Job) []Job {
	if len(jobs) == 0 {
		return []Job{}
	}
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		out = append(out, FromJob(job))
	}
	return out
}

// FromStats converts queue stats.
func FromStats(stats queue.Stats) QueueStats {
	return QueueStats{
		Queued:     stats.Queued,
		InProgress: stats.InProgress,
		Completed:  stats.Completed,
		Failed:     stats.Failed,
		Total:      stats.Total,
	}
}

// FromStatusSummary converts worker diagnostics.
func FromStatusSummary(summary worker.StatusSummary) WorkerStatus {
	status := WorkerStatus{
		State:            string(summary.State),
		WorkerID:         summary.WorkerID,
		EncoderAvailable: summary.EncoderAvailable,
		InFlight:         summary.InFlight,
		LastError:        summary.LastError,
		Queue:            FromStats(summary.QueueStats),
	}
	if last := summary.LastJob; last != nil {
		status.LastJob = &JobSummary{
			ID:        last.ID,
			VideoID:   last.VideoID,
			Attempts:  last.Attempts,
			ClaimedAt: formatTime(last.ClaimedAt),
		}
	}
	return status
}

// FromVideo converts a video record.
func FromVideo(record *videos.Record) Video {
	if record == nil {
		return Video{}
	}
	return Video{
		VideoID:             record.VideoID,
		EncodingStatus:      string(record.EncodingStatus),
		EncodingCompletedAt: formatTimePtr(record.EncodingCompletedAt),
		AdaptiveManifestURL: record.AdaptiveManifestURL,
		ProgressiveURL:      record.ProgressiveURL,
		ThumbnailURL:        record.ThumbnailURL,
		Degraded:            record.Degraded,
		FailureReason:       record.FailureReason,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// FromDependencies converts host dependency checks to their transport form.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, st := range statuses {
		out[i] = DependencyStatus{
			Name:        st.Name,
			Command:     st.Command,
			Description: st.Description,
			Optional:    st.Optional,
			Available:   st.Available,
			Detail:      st.Detail,
		}
	}
	return out
}
