// Package daemonrun assembles and runs the townhalld process.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"townhall/internal/api"
	"townhall/internal/config"
	"townhall/internal/daemon"
	"townhall/internal/deps"
	"townhall/internal/encoding"
	"townhall/internal/ingest"
	"townhall/internal/logging"
	"townhall/internal/metrics"
	"townhall/internal/notifications"
	"townhall/internal/queue"
	"townhall/internal/storage"
	"townhall/internal/videos"
	"townhall/internal/worker"
)

// Options carries command-line overrides for the daemon.
type Options struct {
	LogLevel    string // overrides logging.level when set
	Development bool
}

// process owns everything Run opens. Cleanups run in reverse order.
type process struct {
	cfg      *config.Config
	logger   *slog.Logger
	cleanups []func()
}

func (p *process) onExit(fn func()) { p.cleanups = append(p.cleanups, fn) }

func (p *process) exit() {
	for i := len(p.cleanups) - 1; i >= 0; i-- {
		p.cleanups[i]()
	}
}

// Run starts townhalld and blocks until ctx ends or the process receives
// SIGINT or SIGTERM.
func Run(ctx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger(cfg, opts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	p := &process{cfg: cfg, logger: logger}
	defer p.exit()

	logDependencySnapshot(logger, cfg)

	d, svc, err := p.assemble(ctx)
	if err != nil {
		return err
	}
	if err := d.Start(ctx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another townhalld and the api_bind address"),
		)
		return err
	}
	p.onExit(d.Stop)

	// The pid file belongs to whichever process holds the instance lock.
	if err := writePIDFile(cfg.PIDPath()); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	p.onExit(func() { _ = os.Remove(cfg.PIDPath()) })

	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		_ = ingest.New(cfg, svc, logger).Run(ctx)
	}()

	<-ctx.Done()
	logger.Info("townhall daemon shutting down")
	<-consumed
	return nil
}

func newLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", cfg.DaemonLogPath()},
		Development: opts.Development,
	})
}

// assemble opens both stores and builds the worker, queue service and
// daemon around them.
func (p *process) assemble(ctx context.Context) (*daemon.Daemon, *api.QueueService, error) {
	cfg, logger := p.cfg, p.logger

	jobs, err := queue.Open(cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open queue store", "queue_open_failed", logging.Error(err))
		return nil, nil, err
	}
	p.onExit(func() { _ = jobs.Close() })

	records, err := videos.Open(ctx, cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open video records", "videos_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check videos.driver and videos.dsn"),
		)
		return nil, nil, err
	}
	p.onExit(func() { _ = records.Close() })

	m := metrics.New()
	local := storage.NewLocal(cfg)
	w := worker.New(cfg, jobs, worker.Dependencies{
		Encoder:  encoding.NewFFmpeg(cfg, local, logger),
		Fallback: encoding.NewCopier(local, logger),
		Videos:   records,
		Notifier: notifications.NewService(cfg),
		Metrics:  m,
	}, logger)
	svc := api.NewQueueService(jobs, records, m)

	d, err := daemon.New(cfg, jobs, records, w, svc, m, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create daemon: %w", err)
	}
	return d, svc, nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

// logDependencySnapshot records which optional features and host
// dependencies are live at startup.
func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("videos_driver", cfg.Videos.Driver),
		logging.Bool("ingest_enabled", cfg.Ingest.AMQPURL != ""),
		logging.Bool("auth_enabled", cfg.API.JWTSecret != ""),
	}
	for _, st := range deps.CheckSystem(cfg) {
		attrs = append(attrs, logging.Bool(snapshotKey(st.Name), st.Available))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}

func snapshotKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "_") + "_available"
}
