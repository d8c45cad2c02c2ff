package types

import (
	"time"

	"github.com/google/uuid"
)

// Record is one dispatched HTTP request. It is created once by the dispatcher
// and never mutated afterwards; copies are handed to readers.
type Record struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Method       string    `json:"method"`
	Path         string    `json:"path"`
	Status       int       `json:"status"`
	ResponseTime int64     `json:"responseTime"` // milliseconds
	ClientIP     string    `json:"clientIp"`
	UserAgent    string    `json:"userAgent"`
}

// NewRecord builds a Record with a fresh random ID.
func NewRecord(at time.Time, method, path string, status int, elapsed time.Duration, clientIP, userAgent string) Record {
	return Record{
		ID:           uuid.NewString(),
		Timestamp:    at,
		Method:       method,
		Path:         path,
		Status:       status,
		ResponseTime: elapsed.Milliseconds(),
		ClientIP:     clientIP,
		UserAgent:    userAgent,
	}
}

// Sink receives every record after it has been stored in the log buffer.
// Publish runs on the request goroutine: it must not wait on I/O of
// unbounded duration and never reports errors. Sinks backed by storage hand
// records to their own goroutine.
type Sink interface {
	Publish(rec Record)
}
