package ws

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/obsidianstack/reqscope/server/internal/respond"
)

// DefaultWriteTimeout bounds a single frame write to one subscriber.
const DefaultWriteTimeout = 10 * time.Second

// Handler accepts subscribers on the upgrade endpoint.
type Handler struct {
	reg          *Registry
	writeTimeout time.Duration
	loops        sync.WaitGroup
}

// NewHandler returns a Handler that registers accepted connections in reg.
// A zero writeTimeout disables write deadlines.
func NewHandler(reg *Registry, writeTimeout time.Duration) *Handler {
	return &Handler{reg: reg, writeTimeout: writeTimeout}
}

// ServeHTTP performs the handshake. It returns as soon as the connection is
// registered; the read loop runs in its own goroutine.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if respond.Preflight(w, r) {
		return
	}

	token, err := Negotiate(r)
	if err != nil {
		slog.Debug("ws: upgrade rejected", "remote", r.RemoteAddr, "err", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	nc, brw, err := http.NewResponseController(w).Hijack()
	if err != nil {
		slog.Error("ws: hijack", "remote", r.RemoteAddr, "err", err)
		respond.Error(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	// The server may have left read/write deadlines on the raw conn.
	nc.SetDeadline(time.Time{}) //nolint:errcheck

	if err := writeAccept(brw, token); err == nil {
		err = brw.Flush()
	}
	if err != nil {
		slog.Debug("ws: write 101", "remote", r.RemoteAddr, "err", err)
		nc.Close() //nolint:errcheck
		return
	}

	c := newConn(nc, brw.Reader, h.writeTimeout)
	h.reg.Add(c)
	slog.Debug("ws: subscriber connected", "conn", c.ID(), "remote", c.RemoteAddr(), "subscribers", h.reg.Len())

	h.loops.Add(1)
	go h.serve(c)
}

func (h *Handler) serve(c *Conn) {
	defer h.loops.Done()

	err := c.readLoop()
	h.reg.Remove(c)
	c.Close() //nolint:errcheck

	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		slog.Debug("ws: read loop ended", "conn", c.ID(), "err", err)
		return
	}
	slog.Debug("ws: subscriber disconnected", "conn", c.ID())
}

// Shutdown closes every subscriber and waits for their read loops to exit.
func (h *Handler) Shutdown() int {
	n := h.reg.CloseAll()
	h.loops.Wait()
	return n
}
