// Package services defines shared utilities consumed by the encoding worker,
// the adapters, and the external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, video IDs, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified (retryable vs permanent, unavailable vs broken) without string
//     matching.
//
// Use these helpers when wiring new adapter logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
