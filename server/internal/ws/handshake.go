package ws

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// acceptGUID is the fixed suffix from RFC 6455 section 1.3.
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

var (
	ErrMethod     = errors.New("upgrade requires GET")
	ErrNotUpgrade = errors.New("not a websocket upgrade")
	ErrMissingKey = errors.New("missing Sec-WebSocket-Key")
)

// ProtocolError rejects an upgrade request. The client gets 400 with an
// empty body and nothing is registered.
type ProtocolError struct {
	Reason error
}

func (e *ProtocolError) Error() string { return "ws: handshake: " + e.Reason.Error() }

func (e *ProtocolError) Unwrap() error { return e.Reason }

// AcceptKey computes the Sec-WebSocket-Accept value for a client key.
func AcceptKey(key string) string {
	h := sha1.New()
	io.WriteString(h, key)        //nolint:errcheck
	io.WriteString(h, acceptGUID) //nolint:errcheck
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Negotiate checks that r is a WebSocket upgrade and returns the accept token
// for it. Any failure is a *ProtocolError.
func Negotiate(r *http.Request) (string, error) {
	if r.Method != http.MethodGet {
		return "", &ProtocolError{Reason: ErrMethod}
	}
	if !headerHasToken(r.Header, "Connection", "upgrade") ||
		!strings.EqualFold(strings.TrimSpace(r.Header.Get("Upgrade")), "websocket") {
		return "", &ProtocolError{Reason: ErrNotUpgrade}
	}
	key := strings.TrimSpace(r.Header.Get("Sec-WebSocket-Key"))
	if key == "" {
		return "", &ProtocolError{Reason: ErrMissingKey}
	}
	return AcceptKey(key), nil
}

// writeAccept writes the 101 response. The caller flushes.
func writeAccept(w io.Writer, token string) error {
	_, err := fmt.Fprintf(w,
		"HTTP/1.1 101 Switching Protocols\r\n"+
			"Upgrade: websocket\r\n"+
			"Connection: Upgrade\r\n"+
			"Sec-WebSocket-Accept: %s\r\n\r\n", token)
	return err
}

// headerHasToken reports whether any comma-separated value of header name
// equals token, ignoring case.
func headerHasToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
