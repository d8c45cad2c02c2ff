package stats

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Stats tracks process-wide request and lifecycle counters.
// All methods are safe for concurrent use.
type Stats struct {
	now func() time.Time // injectable for deterministic tests

	started   atomic.Int64 // unix nanoseconds; 0 until MarkStarted
	running   atomic.Bool
	requests  atomic.Int64
	faults    atomic.Int64
	latencyMs atomic.Int64

	mu       sync.Mutex
	byStatus map[int]int64
}

// New returns a Stats with the running flag cleared.
func New() *Stats {
	return &Stats{
		now:      time.Now,
		byStatus: make(map[int]int64),
	}
}

// MarkStarted records the start time and sets the running flag.
func (s *Stats) MarkStarted() {
	s.started.Store(s.now().UnixNano())
	s.running.Store(true)
}

// SetRunning sets the running flag.
func (s *Stats) SetRunning(running bool) { s.running.Store(running) }

// Running reports whether the server is accepting requests.
func (s *Stats) Running() bool { return s.running.Load() }

// Observe counts one dispatched request.
func (s *Stats) Observe(status int, elapsed time.Duration) {
	s.requests.Add(1)
	s.latencyMs.Add(elapsed.Milliseconds())
	if status >= 500 {
		s.faults.Add(1)
	}
	s.mu.Lock()
	s.byStatus[status]++
	s.mu.Unlock()
}

// Requests returns the number of requests observed.
func (s *Stats) Requests() int64 { return s.requests.Load() }

// Faults returns the number of requests that ended with a 5xx status.
func (s *Stats) Faults() int64 { return s.faults.Load() }

// ByStatus returns a copy of the per-status request counts.
func (s *Stats) ByStatus() map[int]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]int64, len(s.byStatus))
	for k, v := range s.byStatus {
		out[k] = v
	}
	return out
}

// Uptime returns the time since MarkStarted, or zero if never started.
func (s *Stats) Uptime() time.Duration {
	started := s.started.Load()
	if started == 0 {
		return 0
	}
	return s.now().Sub(time.Unix(0, started))
}

// Reset zeroes the counters and restarts the uptime clock.
func (s *Stats) Reset() {
	s.requests.Store(0)
	s.faults.Store(0)
	s.latencyMs.Store(0)
	s.mu.Lock()
	s.byStatus = make(map[int]int64)
	s.mu.Unlock()
	s.started.Store(s.now().UnixNano())
}

// FormatUptime renders d as "1d 2h 3m", "2h 3m", "3m 4s" or "4s".
func FormatUptime(d time.Duration) string {
	seconds := int64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours%24, minutes%60)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes%60)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds%60)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// MemoryUsage returns the live heap size formatted in megabytes.
func MemoryUsage() string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return fmt.Sprintf("%.1f MB", float64(m.HeapAlloc)/(1024*1024))
}

func sortedStatuses(m map[int]int64) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
