package worker

import (
	"context"
	"time"

	"townhall/internal/logging"
	"townhall/internal/queue"
)

// JobSummary is the subset of the last claimed job exposed in status output.
type JobSummary struct {
	ID        string       `json:"id"`
	VideoID   string       `json:"video_id"`
	Status    queue.Status `json:"status"`
	Attempts  int          `json:"attempts"`
	ClaimedAt time.Time    `json:"claimed_at"`
}

// StatusSummary represents lightweight worker diagnostics.
type StatusSummary struct {
	State            State       `json:"state"`
	WorkerID         string      `json:"worker_id"`
	EncoderAvailable bool        `json:"encoder_available"`
	InFlight         int         `json:"in_flight"`
	LastError        string      `json:"last_error,omitempty"`
	LastJob          *JobSummary `json:"last_job,omitempty"`
	QueueStats       queue.Stats `json:"queue"`
}

// Status returns the latest worker information.
func (w *Worker) Status(ctx context.Context) StatusSummary {
	w.mu.RLock()
	summary := StatusSummary{
		State:            w.state,
		WorkerID:         w.id,
		EncoderAvailable: w.encoderAvailable,
		InFlight:         w.InFlight(),
	}
	if w.lastErr != nil {
		summary.LastError = w.lastErr.Error()
	}
	if job := w.lastJob; job != nil {
		summary.LastJob = &JobSummary{
			ID:        job.ID,
			VideoID:   job.VideoID,
			Status:    job.Status,
			Attempts:  job.Attempts,
			ClaimedAt: job.UpdatedAt,
		}
	}
	w.mu.RUnlock()

	stats, err := w.store.Stats(ctx)
	if err != nil {
		w.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	summary.QueueStats = stats
	return summary
}
