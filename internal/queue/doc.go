// Package queue persists encoding jobs in SQLite and exposes the atomic
// operations the encoding worker drives them through.
//
// A job moves queued -> in_progress -> completed, or on failure back to queued
// (while attempts remain) or to terminal failed. Claims are leases: the claimer
// stamps an owner and an expiry, extends it with heartbeats, and ReclaimExpired
// returns abandoned claims to the queue. A partial unique index guarantees at
// most one queued or in-progress job per video, which doubles as the
// idempotency guard for duplicate upload events.
//
// The database is treated as transient storage for in-flight jobs rather than
// a long-term archive: terminal jobs are purged after the retention window.
// Schema changes bump the version in schema.go; operators clear the database to
// adopt the new schema.
package queue
