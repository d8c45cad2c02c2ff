// Package logbuf holds the bounded in-memory audit log of dispatched requests.
//
// Buffer is a fixed-capacity FIFO ring of types.Record values:
//   - Push appends and, once full, evicts exactly the oldest record
//   - Recent(limit) returns the newest records in chronological order
//   - Clear empties the ring; Count reports its size
//
// Writers (Push, Clear, Resize) take an exclusive lock; readers (Recent, Count)
// share a read lock, so concurrent reads never observe a half-applied push.
package logbuf
