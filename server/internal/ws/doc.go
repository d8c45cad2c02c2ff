// Package ws streams request records to subscribers over a minimal,
// hand-built WebSocket server.
//
// Handler answers the upgrade on the configured path (default /ws/logs):
// Negotiate validates the request, the connection is hijacked, the 101
// response is written, and the new Conn is added to the Registry before any
// frame can reach it. Each Conn then runs one read loop in its own goroutine
// until the peer goes away.
//
// Broadcaster implements types.Sink. Publish marshals a record once, encodes
// one unmasked text frame and writes it to a snapshot of the registry. A
// connection whose write fails is removed and closed; the rest still get the
// frame.
//
// Wire format sent to clients, one text frame per record:
//
//	{"id":"…","timestamp":"…","method":"GET","path":"/health","status":200,
//	 "responseTime":1,"clientIp":"127.0.0.1","userAgent":"curl/8.4.0"}
//
// Inbound frames are parsed only far enough to skip them. A close frame is
// answered with an empty close frame and ends the connection. There is no
// ping/pong keepalive and no idle timeout: a subscriber stays registered
// until it disconnects or a write to it fails.
package ws
