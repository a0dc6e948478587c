package daemon

import (
	"log/slog"
	"sync"

	"github.com/tene/weaver/internal/core"
	"github.com/tene/weaver/internal/protocol"
)

// outboundQueue is the unbounded backpressure primitive behind each
// ClientConn's outbound notices (spec.md §4.3, §5): exactly one
// producer (the broker), exactly one consumer (the socket writer).
// Push never blocks the broker; a slow consumer simply lets the queue
// grow. A soft cap only logs a warning, matching spec.md's "overflow
// policy is to keep buffering."
type outboundQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []protocol.ServerMessage
	closed bool
	warned bool
}

func newOutboundQueue() *outboundQueue {
	q := &outboundQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues msg. It never blocks, and drops nothing while the queue
// is open; once the queue is closed, msg is discarded.
func (q *outboundQueue) Push(msg protocol.ServerMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, msg)

	softCap := core.GetDefaultConfig().QueueSoftCap
	if cfg := core.GetConfig(); cfg != nil {
		softCap = cfg.QueueSoftCap
	}
	if !q.warned && softCap > 0 && len(q.items) > softCap {
		q.warned = true
		slog.Warn("client outbound queue exceeded soft cap, continuing to buffer", "len", len(q.items), "cap", softCap)
	}
	q.cond.Signal()
}

// Pop blocks until an item is available or the queue is closed. ok is
// false once the queue is closed and fully drained.
func (q *outboundQueue) Pop() (protocol.ServerMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return protocol.ServerMessage{}, false
	}
	item := q.items[0]
	q.items[0] = protocol.ServerMessage{}
	q.items = q.items[1:]
	return item, true
}

// Close marks the queue closed; blocked and future Pop calls drain
// whatever remains, then return ok=false.
func (q *outboundQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Len reports the current queue depth, for tests and diagnostics.
func (q *outboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
