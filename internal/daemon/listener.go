package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
)

// Listener owns the daemon's Unix socket and the Broker it hands new
// connections to (spec.md §4.2). Modeled on the teacher's server.go Run
// accept loop, generalized from its TCP/TLS listener to a single Unix
// socket and from connection handlers to ClientConn.Serve.
type Listener struct {
	path   string
	ln     net.Listener
	broker *Broker
}

// Listen unlinks any stale socket file at path and binds a fresh Unix
// listener there (spec.md §4.2). A stale, unowned socket file is
// routine — an earlier daemon that did not shut down cleanly — and is
// removed before binding; a bind failure after that is fatal to the
// daemon (spec.md §7).
func Listen(path string) (*Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("bind socket listener %s: %w", path, err)
	}
	return &Listener{path: path, ln: ln, broker: NewBroker()}, nil
}

// Broker returns the listener's broker.
func (l *Listener) Broker() *Broker { return l.broker }

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close closes the underlying socket, unblocking a concurrent Serve's
// accept loop. Closing also removes the socket file, as net.UnixListener
// does for a socket it created.
func (l *Listener) Close() error { return l.ln.Close() }

// Serve accepts connections and spawns a ClientConn goroutine for each,
// until ctx is cancelled or the listener is closed. A transient accept
// error is logged and the loop continues; a closed listener ends it
// cleanly (spec.md §4.2).
func (l *Listener) Serve(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() { l.ln.Close() })
	defer stop()
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Warn("accept failed", "error", err)
			continue
		}
		go Serve(ctx, conn, l.broker)
	}
}
