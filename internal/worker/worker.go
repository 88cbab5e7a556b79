package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"townhall/internal/config"
	"townhall/internal/encoding"
	"townhall/internal/logging"
	"townhall/internal/metrics"
	"townhall/internal/notifications"
	"townhall/internal/queue"
	"townhall/internal/videos"
)

// State is the lifecycle position of a Worker.
type State string

const (
	StateStopped  State = "STOPPED"
	StateStarting State = "STARTING"
	StateRunning  State = "RUNNING"
	StateStopping State = "STOPPING"
)

// Dependencies bundles the collaborators a Worker drives.
type Dependencies struct {
	Encoder  encoding.Encoder
	Fallback encoding.Fallback
	Videos   videos.Recorder
	Notifier notifications.Service
	Metrics  *metrics.Metrics
}

// Worker processes encoding jobs from a queue.Store.
type Worker struct {
	store    *queue.Store
	encoder  encoding.Encoder
	fallback encoding.Fallback
	videos   videos.Recorder
	notifier notifications.Service
	metrics  *metrics.Metrics
	logger   *slog.Logger
	id       string

	pollInterval       time.Duration
	statsInterval      time.Duration
	cleanupInterval    time.Duration
	shutdownTimeout    time.Duration
	shutdownPoll       time.Duration
	errorRetryInterval time.Duration
	heartbeatInterval  time.Duration
	lease              time.Duration
	classifyFailures   bool

	stopping atomic.Bool
	inFlight atomic.Int32

	mu               sync.RWMutex
	state            State
	cancel           context.CancelFunc
	unsubscribe      func()
	wg               sync.WaitGroup
	done             chan struct{}
	encoderAvailable bool
	lastErr          error
	lastJob          *queue.Job
}

// New constructs a stopped worker. A nil notifier falls back to the no-op
// implementation.
func New(cfg *config.Config, store *queue.Store, deps Dependencies, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(&config.Config{})
	}
	id := newWorkerID()
	return &Worker{
		store:              store,
		encoder:            deps.Encoder,
		fallback:           deps.Fallback,
		videos:             deps.Videos,
		notifier:           notifier,
		metrics:            deps.Metrics,
		logger:             logging.NewComponentLogger(logger, "worker").With(logging.String(logging.FieldWorkerID, id)),
		id:                 id,
		pollInterval:       seconds(cfg.Worker.PollInterval),
		statsInterval:      seconds(cfg.Worker.StatsInterval),
		cleanupInterval:    seconds(cfg.Worker.CleanupInterval),
		shutdownTimeout:    seconds(cfg.Worker.ShutdownTimeout),
		shutdownPoll:       seconds(cfg.Worker.ShutdownPollInterval),
		errorRetryInterval: seconds(cfg.Worker.ErrorRetryInterval),
		heartbeatInterval:  seconds(cfg.Worker.HeartbeatInterval),
		lease:              cfg.Lease(),
		classifyFailures:   cfg.Encoding.ClassifyPermanentFailures,
		state:              StateStopped,
	}
}

// ID returns the lease owner identity used when claiming jobs.
func (w *Worker) ID() string {
	return w.id
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Start probes the encoder, subscribes to queue notifications, and launches
// the scheduling and maintenance loops. An unavailable encoder does not
// prevent startup; availability is checked again before every job.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.state != StateStopped {
		w.mu.Unlock()
		return errors.New("worker already running")
	}
	if w.done != nil {
		select {
		case <-w.done:
		default:
			w.mu.Unlock()
			return errors.New("worker is still finishing a job from the previous run")
		}
	}
	w.state = StateStarting
	w.mu.Unlock()

	w.stopping.Store(false)
	available := w.probeEncoder(ctx)
	if available {
		w.logger.Info("encoder available")
	} else {
		logging.WarnWithContext(w.logger, "encoder unavailable at startup; jobs will use the fallback copy", "encoder_unavailable",
			logging.String(logging.FieldErrorHint, "check encoding.ffmpeg_binary and encoding.ffprobe_binary or run townhall deps"),
			logging.String(logging.FieldImpact, "videos are published untranscoded until the encoder returns"),
		)
	}

	wake, unsubscribe := w.store.Subscribe()
	runCtx, cancel := context.WithCancel(ctx)
	w.reclaimExpired(runCtx)

	done := make(chan struct{})
	w.mu.Lock()
	w.cancel = cancel
	w.unsubscribe = unsubscribe
	w.done = done
	w.state = StateRunning
	w.wg.Add(2)
	w.mu.Unlock()

	go w.schedule(runCtx, wake)
	go w.maintain(runCtx)
	go func() {
		w.wg.Wait()
		close(done)
	}()

	w.logger.Info("encoding worker started",
		logging.Duration("poll_interval", w.pollInterval),
		logging.Duration("lease", w.lease),
		logging.Bool("classify_permanent_failures", w.classifyFailures),
	)
	return nil
}

// Stop stops claiming new jobs and waits for in-flight work, polling every
// shutdown poll interval up to the shutdown timeout. On timeout it logs one
// warning and returns while the job keeps running; the encoder subprocess is
// never terminated by Stop.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.state != StateRunning {
		w.mu.Unlock()
		return
	}
	w.state = StateStopping
	cancel := w.cancel
	unsubscribe := w.unsubscribe
	done := w.done
	w.cancel = nil
	w.unsubscribe = nil
	w.mu.Unlock()

	w.stopping.Store(true)
	unsubscribe()
	cancel()

	start := time.Now()
	deadline := time.NewTimer(w.shutdownTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(w.shutdownPoll)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			w.setState(StateStopped)
			w.logger.Info("encoding worker stopped", logging.Duration("waited", time.Since(start)))
			return
		case <-ticker.C:
			w.logger.Info("waiting for in-flight jobs", logging.Int("pending", w.InFlight()))
		case <-deadline.C:
			pending := w.InFlight()
			logging.WarnWithContext(w.logger, "shutdown timeout elapsed with jobs still in flight", "worker_stop_timeout",
				logging.Int("pending", pending),
				logging.Duration("waited", time.Since(start)),
				logging.String(logging.FieldErrorHint, "the encoder keeps running; its lease expires if the process exits"),
				logging.String(logging.FieldImpact, "in-flight job is retried by the next worker after lease expiry"),
			)
			w.notify(context.Background(), func(ctx context.Context) error {
				return w.notifier.NotifyStopTimeout(ctx, pending, time.Since(start))
			})
			w.setState(StateStopped)
			return
		}
	}
}

// InFlight returns the number of jobs currently being processed.
func (w *Worker) InFlight() int {
	return int(w.inFlight.Load())
}

func (w *Worker) setState(state State) {
	w.mu.Lock()
	w.state = state
	w.mu.Unlock()
}

func (w *Worker) probeEncoder(ctx context.Context) bool {
	available := w.encoder != nil && w.encoder.IsAvailable(ctx)
	w.mu.Lock()
	w.encoderAvailable = available
	w.mu.Unlock()
	w.metrics.SetEncoderAvailable(available)
	return available
}

func (w *Worker) setLastError(err error) {
	w.mu.Lock()
	w.lastErr = err
	w.mu.Unlock()
}

func (w *Worker) setLastJob(job *queue.Job) {
	w.mu.Lock()
	if job != nil {
		copy := *job
		w.lastJob = &copy
	} else {
		w.lastJob = nil
	}
	w.mu.Unlock()
}

func newWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}

func seconds(value int) time.Duration {
	if value <= 0 {
		return time.Second
	}
	return time.Duration(value) * time.Second
}
