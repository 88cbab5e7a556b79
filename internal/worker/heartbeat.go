package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"townhall/internal/logging"
)

// heartbeatLoop extends the lease on jobID until ctx is cancelled.
func (w *Worker) heartbeatLoop(ctx context.Context, wg *sync.WaitGroup, jobID string) {
	defer wg.Done()
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, w.logger)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			held, err := w.store.ExtendLease(ctx, jobID, w.id, w.lease)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn("lease heartbeat failed", logging.Error(err))
				continue
			}
			if !held {
				logging.WarnWithContext(logger, "lease no longer held by this worker", "lease_lost",
					logging.String(logging.FieldErrorHint, "check for clock skew or a lease shorter than the heartbeat"),
					logging.String(logging.FieldImpact, "job may be processed twice"),
				)
				return
			}
		}
	}
}
