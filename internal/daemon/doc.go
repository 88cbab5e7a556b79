// Package daemon coordinates the long-running townhalld process.
//
// It holds the flock-based single-instance lock, starts and stops the encoding
// worker, and serves the HTTP API (gin) that fronts the queue service, the
// video records, Prometheus metrics, and daemon status. Encoding itself lives
// in the worker package; the daemon only owns startup, shutdown, and the
// outer surface.
package daemon
