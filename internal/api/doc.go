// Package api defines wire-format types and services for the daemon HTTP API
// and the upload ingest paths. It translates queue, worker, and video models
// into transport-friendly DTOs that the CLI and other consumers can render
// without coupling to internal types.
//
// # Key Types
//
// Job: transport representation of an encoding job.
//
// WorkerStatus: worker lifecycle state, encoder availability, queue stats, and
// the last claimed job.
//
// DaemonStatus: aggregated runtime information including dependencies.
//
// # Services
//
// QueueService is the single enqueue entry point shared by the HTTP handler
// and the AMQP consumer. It creates the PENDING video record before the job is
// queued so every job has a record for the worker to resolve.
//
// Client talks to a running daemon over HTTP.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
package api
