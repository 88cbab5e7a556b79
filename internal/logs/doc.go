// Package logs reads the townhalld log file for the CLI.
//
// Tail returns the last N lines and an offset; passing that offset back with
// Follow set blocks until new lines arrive or the wait elapses. Filter narrows
// lines to one job or video in either the console or JSON log format.
package logs
