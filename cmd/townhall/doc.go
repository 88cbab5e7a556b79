// Command townhall is the operator CLI for the townhall encoding pipeline.
//
// Queue and video commands talk to a running townhalld over its HTTP API and
// fall back to opening the local queue and video databases when the daemon is
// not reachable. Configuration, dependency, and token utilities work offline.
package main
