package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/obsidianstack/reqscope/pkg/types"
)

const (
	// insertTimeout bounds one background insert.
	insertTimeout = 5 * time.Second

	// queueSize is how many published records may wait for the writer.
	queueSize = 1024
)

// pending is one unit of writer work: a record, or a Flush marker.
type pending struct {
	rec   types.Record
	flush chan struct{}
}

// Archive is a SQLite-backed record store. Published records are written by
// a single background goroutine.
type Archive struct {
	db        *sql.DB
	retention time.Duration
	now       func() time.Time // injectable for deterministic tests

	mu      sync.RWMutex // guards closed against sends on queue
	closed  bool
	queue   chan pending
	done    chan struct{}
	dropped atomic.Int64
}

// Open opens (or creates) the database at path.
func Open(path string, retention time.Duration) (*Archive, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("archive: open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: ping db: %w", err)
	}

	a, err := NewFromDB(db, retention)
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// NewFromDB wraps an existing *sql.DB and runs migrations.
func NewFromDB(db *sql.DB, retention time.Duration) (*Archive, error) {
	a := &Archive{
		db:        db,
		retention: retention,
		now:       time.Now,
		queue:     make(chan pending, queueSize),
		done:      make(chan struct{}),
	}
	if err := a.migrate(); err != nil {
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	go a.write()
	return a, nil
}

// Close writes every queued record, then closes the database. It is safe to
// call more than once.
func (a *Archive) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	<-a.done
	return a.db.Close()
}

func (a *Archive) write() {
	defer close(a.done)
	for p := range a.queue {
		if p.flush != nil {
			close(p.flush)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
		if err := a.Insert(ctx, p.rec); err != nil {
			slog.Error("archive: insert failed", "id", p.rec.ID, "err", err)
		}
		cancel()
	}
}

func (a *Archive) migrate() error {
	_, err := a.db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			ts INTEGER NOT NULL,
			method TEXT NOT NULL,
			path TEXT NOT NULL,
			status INTEGER NOT NULL,
			response_ms INTEGER NOT NULL,
			client_ip TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_records_ts ON records(ts);
	`)
	return err
}

// Publish queues rec for the writer and returns at once. When the queue is
// full the record is dropped and counted. It implements types.Sink.
func (a *Archive) Publish(rec types.Record) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- pending{rec: rec}:
	default:
		if n := a.dropped.Add(1); n == 1 || n%1000 == 0 {
			slog.Warn("archive: queue full, dropping records", "dropped", n)
		}
	}
}

// Dropped returns how many published records were discarded because the
// writer fell behind.
func (a *Archive) Dropped() int64 { return a.dropped.Load() }

// Flush blocks until every record published before the call is written.
func (a *Archive) Flush() {
	ack := make(chan struct{})
	a.mu.RLock()
	if a.closed {
		a.mu.RUnlock()
		<-a.done
		return
	}
	a.queue <- pending{flush: ack}
	a.mu.RUnlock()
	<-ack
}

// Insert stores rec. A record whose ID is already archived is ignored.
func (a *Archive) Insert(ctx context.Context, rec types.Record) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO records (id, ts, method, path, status, response_ms, client_ip, user_agent)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp.UnixNano(), rec.Method, rec.Path, rec.Status,
		rec.ResponseTime, rec.ClientIP, rec.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("archive: insert: %w", err)
	}
	return nil
}

// Query returns up to limit of the newest records at or after since, oldest
// first. A zero since means no lower bound.
func (a *Archive) Query(ctx context.Context, since time.Time, limit int) ([]types.Record, error) {
	if limit <= 0 {
		return []types.Record{}, nil
	}
	var from int64
	if !since.IsZero() {
		from = since.UnixNano()
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT id, ts, method, path, status, response_ms, client_ip, user_agent
		 FROM records WHERE ts >= ? ORDER BY ts DESC, seq DESC LIMIT ?`,
		from, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("archive: query: %w", err)
	}
	defer rows.Close()

	out := make([]types.Record, 0, limit)
	for rows.Next() {
		var (
			rec types.Record
			ts  int64
		)
		if err := rows.Scan(&rec.ID, &ts, &rec.Method, &rec.Path, &rec.Status,
			&rec.ResponseTime, &rec.ClientIP, &rec.UserAgent); err != nil {
			return nil, fmt.Errorf("archive: scan: %w", err)
		}
		rec.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: rows: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Count returns the number of archived records.
func (a *Archive) Count(ctx context.Context) (int, error) {
	var n int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("archive: count: %w", err)
	}
	return n, nil
}

// Prune deletes records older than the retention window and returns how
// many were removed. A non-positive retention keeps everything.
func (a *Archive) Prune(ctx context.Context) (int64, error) {
	if a.retention <= 0 {
		return 0, nil
	}
	cutoff := a.now().Add(-a.retention).UnixNano()
	res, err := a.db.ExecContext(ctx, `DELETE FROM records WHERE ts < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archive: prune: %w", err)
	}
	return res.RowsAffected()
}

// Run prunes every interval until ctx is cancelled.
func (a *Archive) Run(ctx context.Context, interval time.Duration) {
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := a.Prune(ctx)
			if err != nil {
				slog.Error("archive: prune failed", "err", err)
				continue
			}
			if n > 0 {
				slog.Debug("archive: pruned expired records", "count", n)
			}
		}
	}
}
