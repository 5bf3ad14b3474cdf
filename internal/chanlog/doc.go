// Package chanlog records per-channel conversation activity.
//
// A Router hands out one Logger per channel. Each Logger has exactly one
// Sink, chosen by configuration:
//   - FileSink: <dir>/<channel>/log.txt, rotated daily at 00:00 UTC
//   - DBSink: rows in the storage channel_logs table
//
// DBSink provisions its query indexes once, before the first insert, and is a
// silent no-op when no storage backend is configured.
package chanlog
