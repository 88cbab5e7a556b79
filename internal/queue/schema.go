package queue

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// currentSchema is stored in SQLite's user_version pragma. A database at
// version 0 has never been initialized.
const currentSchema = 1

// ErrSchemaMismatch is returned by Open when the database was written by a
// different schema revision.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// jobTableColumns lists encoding_jobs columns in scan order.
var jobTableColumns = []string{
	"id", "video_id", "input_locator", "status",
	"attempts", "max_attempts", "last_error",
	"lease_owner", "lease_expires_at", "available_at",
	"created_at", "updated_at", "finished_at",
}

func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	version, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}
	switch version {
	case currentSchema:
		return nil
	case 0:
		return s.applySchema(ctx)
	default:
		return fmt.Errorf("%w: %s is at version %d, this build expects %d; remove the file to start over",
			ErrSchemaMismatch, s.path, version, currentSchema)
	}
}

func (s *Store) applySchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchema)); err != nil {
		return fmt.Errorf("stamp schema version: %w", err)
	}
	return tx.Commit()
}
