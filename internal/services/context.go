package services

import "context"

// JobScope identifies the encoding attempt a context belongs to.
type JobScope struct {
	JobID   string
	VideoID string
	Attempt int
}

type scopeKey struct{}

type correlationKey struct{}

// WithJob attaches scope to ctx. Blank fields inherit from any scope
// already present so nested calls can refine rather than replace it.
func WithJob(ctx context.Context, scope JobScope) context.Context {
	if prev, ok := JobFromContext(ctx); ok {
		if scope.JobID == "" {
			scope.JobID = prev.JobID
		}
		if scope.VideoID == "" {
			scope.VideoID = prev.VideoID
		}
		if scope.Attempt == 0 {
			scope.Attempt = prev.Attempt
		}
	}
	if scope == (JobScope{}) {
		return ctx
	}
	return context.WithValue(ctx, scopeKey{}, scope)
}

// JobFromContext returns the scope attached by WithJob.
func JobFromContext(ctx context.Context) (JobScope, bool) {
	if ctx == nil {
		return JobScope{}, false
	}
	scope, ok := ctx.Value(scopeKey{}).(JobScope)
	return scope, ok
}

// WithCorrelationID tags ctx with an inbound request identifier.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFromContext returns the identifier set by WithCorrelationID.
func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(correlationKey{}).(string)
	return id, ok && id != ""
}
