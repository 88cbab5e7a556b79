package logging

import (
	"context"
	"log/slog"

	"townhall/internal/services"
)

// Structured field keys shared by every component.
const (
	FieldComponent     = "component"
	FieldJobID         = "job_id"
	FieldVideoID       = "video_id"
	FieldAttempt       = "attempt" // 1-based
	FieldWorkerID      = "worker_id"
	FieldCorrelationID = "correlation_id"
	// FieldEventType is a stable machine-readable cause on warnings and errors.
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldImpact    = "impact"
)

// ContextFields returns the job scope and correlation id carried by ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	var fields []slog.Attr
	if scope, ok := services.JobFromContext(ctx); ok {
		if scope.JobID != "" {
			fields = append(fields, JobID(scope.JobID))
		}
		if scope.VideoID != "" {
			fields = append(fields, VideoID(scope.VideoID))
		}
		if scope.Attempt > 0 {
			fields = append(fields, Attempt(scope.Attempt))
		}
	}
	if id, ok := services.CorrelationIDFromContext(ctx); ok {
		fields = append(fields, String(FieldCorrelationID, id))
	}
	return fields
}

// WithContext binds ContextFields(ctx) to logger. A nil logger is replaced
// with a no-op one.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if fields := ContextFields(ctx); len(fields) > 0 {
		return logger.With(Args(fields...)...)
	}
	return logger
}
