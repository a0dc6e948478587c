package daemon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"

	"github.com/tene/weaver/internal/protocol"
)

// ClientConn is the daemon-side per-connection state (spec.md §4.3): it
// owns the socket, the client's unbounded outbound queue, and the decode
// loop for incoming requests. Not to be confused with the client-side
// Connection in internal/client.
type ClientConn struct {
	ID     ClientID
	conn   net.Conn
	broker *Broker
	queue  *outboundQueue
}

// Serve registers a new ClientConn for conn with broker, starts its
// outbound drain loop, and runs its inbound decode loop until the peer
// disconnects or sends something undecodable, then tears the connection
// down (spec.md §4.3). Serve blocks until both loops have exited; callers
// that want concurrent connections run it in its own goroutine.
func Serve(ctx context.Context, conn net.Conn, broker *Broker) {
	defer conn.Close()

	id := broker.NextClientID()
	queue := broker.Register(id)
	defer broker.Unregister(id)

	cc := &ClientConn{ID: id, conn: conn, broker: broker, queue: queue}

	done := make(chan struct{})
	go func() {
		defer close(done)
		cc.outboundLoop()
	}()

	cc.inboundLoop(ctx)

	queue.Close()
	<-done
}

// outboundLoop drains cc's queue and writes each message to the socket,
// in FIFO order, until the queue is closed or a write fails.
func (cc *ClientConn) outboundLoop() {
	for {
		msg, ok := cc.queue.Pop()
		if !ok {
			return
		}
		if err := protocol.WriteServerMessage(cc.conn, msg); err != nil {
			slog.Debug("socket-io: write failed, closing connection", "client", cc.ID, "error", err)
			cc.conn.Close()
			return
		}
	}
}

// inboundLoop decodes ClientMessages from the socket and dispatches
// RunCommand requests to a new ChildTask, until decode failure or EOF.
func (cc *ClientConn) inboundLoop(ctx context.Context) {
	for {
		msg, err := protocol.ReadClientMessage(cc.conn)
		if err != nil {
			if !isExpectedClose(err) {
				slog.Debug("client connection closed", "client", cc.ID, "error", err)
			}
			return
		}

		switch msg.Request.Kind {
		case protocol.RequestRunCommand:
			id := cc.broker.NewCommandID()
			cc.broker.EmitStarted(id, msg.Request.Text, cc.ID, msg.ID)
			task := NewChildTask(id, msg.Request.Text, cc.broker.Emit)
			go task.Run(ctx)
		}
	}
}

func isExpectedClose(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
