package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"townhall/internal/config"
)

// ErrInvalidJob is returned when a job is enqueued without an input locator or
// with a video id that cannot name a serving directory.
var ErrInvalidJob = errors.New("invalid encoding job")

// Store manages encoding job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string

	maxAttempts    int
	retention      time.Duration
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	now            func() time.Time

	subMu       sync.Mutex
	subscribers map[int]chan struct{}
	nextSubID   int
}

// Option customizes a Store at open time.
type Option func(*Store)

// WithClock replaces the wall clock used for timestamps, retention, and leases.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// busyBackoff bounds how often a statement is retried while another
// connection holds the write lock.
var busyBackoff = struct {
	attempts int
	first    time.Duration
	ceiling  time.Duration
}{attempts: 5, first: 10 * time.Millisecond, ceiling: 200 * time.Millisecond}

// sqliteBusy is the primary result code for SQLITE_BUSY.
const sqliteBusy = 5

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func isSQLiteBusy(err error) bool {
	var coded interface{ Code() int }
	switch {
	case err == nil:
		return false
	case errors.As(err, &coded):
		return coded.Code()&0xff == sqliteBusy
	default:
		msg := err.Error()
		return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
	}
}

// retryOnBusy runs op until it succeeds, fails with a non-busy error, or the
// attempt budget is spent. The wait doubles after each busy failure.
func retryOnBusy(ctx context.Context, op func() error) error {
	wait := busyBackoff.first
	err := op()
	for attempt := 1; attempt < busyBackoff.attempts && isSQLiteBusy(err); attempt++ {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait = min(wait*2, busyBackoff.ceiling)
		err = op()
	}
	return err
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var err error
		res, err = s.db.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

func (s *Store) queryRowWithRetry(ctx context.Context, scan func(*sql.Row) error, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		return scan(s.db.QueryRowContext(ctx, query, args...))
	})
}

// queryJobsWithRetry runs a statement returning job rows. A busy failure
// discards the partial result and runs the statement again.
func (s *Store) queryJobsWithRetry(ctx context.Context, query string, args ...any) ([]*Job, error) {
	ctx = ensureContext(ctx)
	var jobs []*Job
	err := retryOnBusy(ctx, func() error {
		jobs = jobs[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			job, err := scanJob(rows)
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		return rows.Err()
	})
	return jobs, err
}

// sqliteDSN applies the connection pragmas through the driver so that every
// pooled connection gets them, not only the first.
func sqliteDSN(path string) string {
	q := url.Values{}
	for _, pragma := range []string{"journal_mode(WAL)", "foreign_keys(1)", "busy_timeout(5000)"} {
		q.Add("_pragma", pragma)
	}
	return path + "?" + q.Encode()
}

// Open creates or attaches to the job database under cfg's data directory
// and checks its schema version.
func Open(cfg *config.Config, opts ...Option) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	path := cfg.QueueDBPath()
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	s := &Store{
		db:             db,
		path:           path,
		maxAttempts:    max(cfg.Queue.MaxAttempts, 1),
		retention:      cfg.Retention(),
		retryBaseDelay: time.Duration(cfg.Queue.RetryBaseDelaySeconds) * time.Second,
		retryMaxDelay:  time.Duration(cfg.Queue.RetryMaxDelaySeconds) * time.Second,
		now:            time.Now,
		subscribers:    make(map[int]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// MaxAttempts returns the retry budget stamped on newly enqueued jobs.
func (s *Store) MaxAttempts() int {
	return s.maxAttempts
}

// Close closes the underlying database connection and releases subscribers.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.closeSubscribers()
	return s.db.Close()
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}
