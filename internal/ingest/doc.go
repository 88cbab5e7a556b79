// Package ingest consumes upload events from an AMQP queue and turns each
// one into an enqueue call.
//
// Messages carry the same JSON body as POST /api/jobs. A message is acked once
// the job exists (a duplicate enqueue counts), rejected without requeue when
// the body is malformed, and requeued when the queue store fails. The consumer
// reconnects with capped exponential backoff until its context ends.
package ingest
