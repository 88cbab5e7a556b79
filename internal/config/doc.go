// Package config loads, normalizes, and validates townhall configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TOWNHALL_VIDEOS_DSN and TOWNHALL_JWT_SECRET. The Config type centralizes
// every knob the daemon and CLI need: storage directories, queue retry policy,
// worker timers, the encoder ladder, and optional integrations (Postgres,
// AMQP ingest, ntfy).
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
