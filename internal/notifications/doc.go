// Package notifications delivers encoding outcomes via ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// the worker can call the Service unconditionally. Each event class can be
// disabled individually through the notifications config section.
package notifications
