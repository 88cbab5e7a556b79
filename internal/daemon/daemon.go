package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"townhall/internal/api"
	"townhall/internal/config"
	"townhall/internal/deps"
	"townhall/internal/logging"
	"townhall/internal/metrics"
	"townhall/internal/notifications"
	"townhall/internal/queue"
	"townhall/internal/videos"
	"townhall/internal/worker"
)

// VideoSource reads video records for the API.
type VideoSource interface {
	Get(ctx context.Context, videoID string) (*videos.Record, error)
	Driver() string
}

// Daemon owns the worker lifecycle, the API server, and the instance lock.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	videos   VideoSource
	worker   *worker.Worker
	queueSvc *api.QueueService
	metrics  *metrics.Metrics

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
}

// New constructs a daemon. videos and m may be nil.
func New(cfg *config.Config, store *queue.Store, videoSource VideoSource, w *worker.Worker, svc *api.QueueService, m *metrics.Metrics, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || w == nil || svc == nil {
		return nil, errors.New("daemon requires config, queue store, worker, and queue service")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		videos:   videoSource,
		worker:   w,
		queueSvc: svc,
		metrics:  m,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the instance lock, then starts the worker and the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another townhalld instance is already running")
	}

	if err := d.worker.Start(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start worker: %w", err)
	}
	if err := d.api.start(); err != nil {
		d.worker.Stop()
		_ = d.lock.Unlock()
		return err
	}

	d.running.Store(true)
	d.logger.Info("townhall daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop closes the API, waits for the worker (bounded by its shutdown
// timeout), and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.api.stop()
	d.worker.Stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_unlock_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "next start may report another instance running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("townhall daemon stopped")
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Addr returns the address the API listens on, or "" when it is not serving.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// Handler exposes the API routes without a listener.
func (d *Daemon) Handler() http.Handler {
	return d.api.engine
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Worker:       api.FromStatusSummary(d.worker.Status(ctx)),
		Dependencies: api.FromDependencies(deps.CheckSystem(d.cfg)),
	}
	if d.videos != nil {
		status.VideosDriver = d.videos.Driver()
	}
	return status
}

// Video fetches a video record, returning nil when it does not exist.
func (d *Daemon) Video(ctx context.Context, videoID string) (*videos.Record, error) {
	if d.videos == nil {
		return nil, errors.New("video records unavailable")
	}
	return d.videos.Get(ctx, strings.TrimSpace(videoID))
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
