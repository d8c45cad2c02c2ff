package ws

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Conn is one accepted subscriber.
type Conn struct {
	id     string
	remote string

	nc           net.Conn
	br           *bufio.Reader
	writeTimeout time.Duration

	wmu       sync.Mutex // serializes frames on nc
	closeOnce sync.Once
	closeErr  error
}

func newConn(nc net.Conn, br *bufio.Reader, writeTimeout time.Duration) *Conn {
	if br == nil {
		br = bufio.NewReader(nc)
	}
	return &Conn{
		id:           uuid.NewString(),
		remote:       nc.RemoteAddr().String(),
		nc:           nc,
		br:           br,
		writeTimeout: writeTimeout,
	}
}

func (c *Conn) ID() string         { return c.id }
func (c *Conn) RemoteAddr() string { return c.remote }

// WriteFrame writes one encoded frame. Concurrent callers never interleave.
func (c *Conn) WriteFrame(frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := c.nc.Write(frame)
	return err
}

// Close closes the transport, which also ends the read loop. Safe to call
// more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.nc.Close()
	})
	return c.closeErr
}

// readLoop drains inbound frames until the peer closes or the transport
// fails. A close frame is answered before returning nil.
func (c *Conn) readLoop() error {
	for {
		op, err := readFrame(c.br)
		if err != nil {
			return err
		}
		if op == opClose {
			c.WriteFrame(closeFrame) //nolint:errcheck
			return nil
		}
	}
}
