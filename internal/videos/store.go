package videos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"townhall/internal/config"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

type dialect struct {
	driver string
	schema string
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
}

var (
	sqliteDialect = dialect{
		driver: "sqlite",
		schema: `CREATE TABLE IF NOT EXISTS videos (
    video_id              TEXT PRIMARY KEY,
    encoding_status       TEXT NOT NULL DEFAULT 'PENDING',
    encoding_completed_at TEXT,
    adaptive_manifest_url TEXT,
    progressive_url       TEXT,
    thumbnail_url         TEXT,
    degraded              INTEGER NOT NULL DEFAULT 0,
    failure_reason        TEXT,
    created_at            TEXT NOT NULL,
    updated_at            TEXT NOT NULL
)`,
	}
	postgresDialect = dialect{
		driver:   "postgres",
		numbered: true,
		schema: `CREATE TABLE IF NOT EXISTS videos (
    video_id              TEXT PRIMARY KEY,
    encoding_status       TEXT NOT NULL DEFAULT 'PENDING',
    encoding_completed_at TEXT,
    adaptive_manifest_url TEXT,
    progressive_url       TEXT,
    thumbnail_url         TEXT,
    degraded              BOOLEAN NOT NULL DEFAULT FALSE,
    failure_reason        TEXT,
    created_at            TEXT NOT NULL,
    updated_at            TEXT NOT NULL
)`,
	}
)

// rebind rewrites ? placeholders into the dialect's native form.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Store is a Recorder backed by SQLite or PostgreSQL.
type Store struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

var _ Recorder = (*Store)(nil)

// Open connects to the configured video record backend and ensures the table
// exists.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	var d dialect
	switch strings.ToLower(strings.TrimSpace(cfg.Videos.Driver)) {
	case "", config.VideosDriverSQLite:
		d = sqliteDialect
	case config.VideosDriverPostgres:
		d = postgresDialect
	default:
		return nil, fmt.Errorf("unsupported videos driver %q", cfg.Videos.Driver)
	}
	dsn := strings.TrimSpace(cfg.Videos.DSN)
	if dsn == "" {
		return nil, errors.New("videos dsn is required")
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s videos db: %w", d.driver, err)
	}
	if d.driver == sqliteDialect.driver {
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout = 5000"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
			}
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect videos db: %w", err)
	}
	if _, err := db.ExecContext(ctx, d.schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create videos table: %w", err)
	}
	return &Store{db: db, dialect: d, now: time.Now}, nil
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string {
	return s.dialect.driver
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsurePending creates a PENDING record for videoID when none exists.
func (s *Store) EnsurePending(ctx context.Context, videoID string) error {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return ErrInvalidVideo
	}
	now := s.stamp()
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO videos (video_id, encoding_status, created_at, updated_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT (video_id) DO NOTHING`),
		videoID, StatusPending, now, now,
	)
	if err != nil {
		return fmt.Errorf("ensure pending video %s: %w", videoID, err)
	}
	return nil
}

// MarkReady records the published outputs and moves the video to READY.
func (s *Store) MarkReady(ctx context.Context, videoID string, outputs Outputs, degraded bool) (bool, error) {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return false, ErrInvalidVideo
	}
	now := s.stamp()
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO videos (video_id, encoding_status, encoding_completed_at, adaptive_manifest_url,
                             progressive_url, thumbnail_url, degraded, failure_reason, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)
         ON CONFLICT (video_id) DO UPDATE SET
             encoding_status = excluded.encoding_status,
             encoding_completed_at = excluded.encoding_completed_at,
             adaptive_manifest_url = excluded.adaptive_manifest_url,
             progressive_url = excluded.progressive_url,
             thumbnail_url = excluded.thumbnail_url,
             degraded = excluded.degraded,
             failure_reason = NULL,
             updated_at = excluded.updated_at
         WHERE videos.encoding_status = ?`),
		videoID, StatusReady, now,
		nullable(outputs.AdaptiveManifestURL), nullable(outputs.ProgressiveURL), nullable(outputs.ThumbnailURL),
		degraded, now, now,
		StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("mark video %s ready: %w", videoID, err)
	}
	return affected(res)
}

// MarkFailed records reason and moves the video to FAILED.
func (s *Store) MarkFailed(ctx context.Context, videoID, reason string) (bool, error) {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return false, ErrInvalidVideo
	}
	now := s.stamp()
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO videos (video_id, encoding_status, encoding_completed_at, failure_reason, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT (video_id) DO UPDATE SET
             encoding_status = excluded.encoding_status,
             encoding_completed_at = excluded.encoding_completed_at,
             failure_reason = excluded.failure_reason,
             updated_at = excluded.updated_at
         WHERE videos.encoding_status = ?`),
		videoID, StatusFailed, now, nullable(strings.TrimSpace(reason)), now, now,
		StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("mark video %s failed: %w", videoID, err)
	}
	return affected(res)
}

// Reset returns a FAILED video to PENDING so an operator retry can resolve it
// again. READY videos are left untouched.
func (s *Store) Reset(ctx context.Context, videoID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`UPDATE videos SET encoding_status = ?, encoding_completed_at = NULL, failure_reason = NULL, updated_at = ?
         WHERE video_id = ? AND encoding_status = ?`),
		StatusPending, s.stamp(), strings.TrimSpace(videoID), StatusFailed,
	)
	if err != nil {
		return false, fmt.Errorf("reset video %s: %w", videoID, err)
	}
	return affected(res)
}

// Get returns the record for videoID, or nil when it does not exist.
func (s *Store) Get(ctx context.Context, videoID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT video_id, encoding_status, encoding_completed_at, adaptive_manifest_url, progressive_url,
                thumbnail_url, degraded, failure_reason, created_at, updated_at
         FROM videos WHERE video_id = ?`),
		strings.TrimSpace(videoID),
	)
	var (
		rec                          Record
		completed, manifest, progURL sql.NullString
		thumb, reason                sql.NullString
		created, updated             string
	)
	err := row.Scan(&rec.VideoID, &rec.EncodingStatus, &completed, &manifest, &progURL,
		&thumb, &rec.Degraded, &reason, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get video %s: %w", videoID, err)
	}
	rec.AdaptiveManifestURL = manifest.String
	rec.ProgressiveURL = progURL.String
	rec.ThumbnailURL = thumb.String
	rec.FailureReason = reason.String
	if completed.Valid {
		if ts, err := time.Parse(timeLayout, completed.String); err == nil {
			rec.EncodingCompletedAt = &ts
		}
	}
	rec.CreatedAt, _ = time.Parse(timeLayout, created)
	rec.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &rec, nil
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(timeLayout)
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
