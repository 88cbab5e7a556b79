// Package worker drains the encoding queue.
//
// A Worker owns one scheduling loop that claims jobs one at a time, runs the
// encoder (or the fallback copier when the encoder is unavailable), mirrors
// the outcome into the video record, and resolves the job in the queue. The
// loop is driven by a poll ticker; the queue's "added" notifications only add
// extra wake-ups. A second goroutine logs queue statistics and purges expired
// terminal jobs.
//
// Stop never cancels an encode that is already running. It waits up to the
// configured shutdown timeout and then returns with a single warning, leaving
// the job to finish (or its lease to expire) on its own.
package worker
