// Package archive persists request records in SQLite so history survives the
// in-memory ring buffer and process restarts.
//
// Archive implements types.Sink. Publish only queues the record; one writer
// goroutine inserts it, and a full queue drops records rather than stalling
// the dispatcher (Dropped counts them). Flush and Close wait for the writer.
// Records older than the retention window are deleted by Prune, which Run
// calls on a ticker. Query serves GET /api/logs/history.
//
// The database uses WAL journaling and a busy timeout so queries and pruning
// can run alongside the writer without SQLITE_BUSY errors.
package archive
