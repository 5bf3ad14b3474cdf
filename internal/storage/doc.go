// Package storage provides the persistence layer for channel activity logs.
//
// It currently supports:
//   - SQLite (pure Go driver, single writer, WAL)
//   - PostgreSQL
//
// Records live in one table, channel_logs. Query indexes are declared by the
// caller through EnsureIndex, which is idempotent.
package storage
