package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/tene/weaver/internal/protocol"
)

// ConnState is a Connection's lifecycle state.
type ConnState int32

const (
	// Pending means Dial has not yet resolved. Reserved for a future
	// asynchronous dial path; the current Dial is synchronous and jumps
	// straight to Connected or returns an error, so no Connection is
	// ever observed in this state today.
	Pending ConnState = iota
	// Connected means the socket is open and usable.
	Connected
	// Failed means the connection is no longer usable: the peer closed
	// it, a frame failed to decode, a write failed, or Close was called.
	// A Failed Connection is never retried in place;
	// callers that want to reconnect Dial a new one.
	Failed
)

// Connection is one client-side socket connection to the daemon
// (spec.md §4.6). Grounded on the teacher's client.go (SendCommand /
// SendCommandStreaming), generalized from a request/single-response
// round trip to a persistent duplex connection carrying a request
// stream and a notice stream concurrently.
type Connection struct {
	conn  net.Conn
	state atomic.Int32

	mu        sync.Mutex
	nextReqID uint32
}

// Dial connects to the daemon listening on socketPath.
func Dial(socketPath string) (*Connection, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	c := &Connection{conn: conn, nextReqID: 1}
	c.state.Store(int32(Connected))
	return c, nil
}

// State reports the connection's current lifecycle state.
func (c *Connection) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Connection) setFailed() {
	c.state.Store(int32(Failed))
}

// RunCommand sends a RunCommand request and returns the request id the
// caller assigned it (spec.md §4.6: request ids are chosen by the
// client, starting at 1 and incrementing per connection). c.mu also
// serializes the socket write itself, not just the id counter, so two
// goroutines calling RunCommand on the same Connection can never
// interleave their frame bytes on the wire.
func (c *Connection) RunCommand(text string) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextReqID
	c.nextReqID++

	msg := protocol.ClientMessage{ID: id, Request: protocol.RunCommand(text)}
	if err := protocol.WriteClientMessage(c.conn, msg); err != nil {
		c.setFailed()
		return 0, err
	}
	return id, nil
}

// Listen runs the inbound decode loop, invoking onMessage for each
// ServerMessage received from the daemon, until the connection is
// closed or a frame fails to decode. Every exit marks the connection
// Failed. A clean EOF from the peer returns nil; any other error,
// including the read error that follows a local Close, is returned to
// the caller. The full ServerMessage (not just its Notice) is passed
// through so callers can tell an echoed request id (spec.md §4.6) apart
// from an unsolicited notice.
func (c *Connection) Listen(onMessage func(protocol.ServerMessage)) error {
	for {
		msg, err := protocol.ReadServerMessage(c.conn)
		if err != nil {
			c.setFailed()
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		onMessage(msg)
	}
}

// Close closes the underlying socket.
func (c *Connection) Close() error {
	c.setFailed()
	return c.conn.Close()
}
