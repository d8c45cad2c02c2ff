package ws

import (
	"encoding/json"
	"log/slog"

	"github.com/obsidianstack/reqscope/pkg/types"
)

// Broadcaster fans records out to every registered subscriber.
type Broadcaster struct {
	reg *Registry
}

func NewBroadcaster(reg *Registry) *Broadcaster {
	return &Broadcaster{reg: reg}
}

// Publish sends rec as JSON to all subscribers. It implements types.Sink.
func (b *Broadcaster) Publish(rec types.Record) {
	payload, err := json.Marshal(rec)
	if err != nil {
		slog.Error("ws: marshal record", "id", rec.ID, "err", err)
		return
	}
	b.Broadcast(payload)
}

// Broadcast writes payload as one text frame to a snapshot of the registry
// and returns how many subscribers it reached. Subscribers whose write fails
// are removed and closed.
func (b *Broadcaster) Broadcast(payload []byte) int {
	conns := b.reg.Snapshot()
	if len(conns) == 0 {
		return 0
	}

	frame := EncodeText(payload)
	sent := 0
	for _, c := range conns {
		if err := c.WriteFrame(frame); err != nil {
			b.drop(c, err)
			continue
		}
		sent++
	}
	return sent
}

func (b *Broadcaster) drop(c *Conn, err error) {
	if b.reg.Remove(c) {
		slog.Debug("ws: subscriber dropped", "conn", c.ID(), "remote", c.RemoteAddr(), "err", err)
	}
	c.Close() //nolint:errcheck
}
