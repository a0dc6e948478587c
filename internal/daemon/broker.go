package daemon

import (
	"log/slog"
	"sync"

	"github.com/tene/weaver/internal/history"
	"github.com/tene/weaver/internal/protocol"
)

// ClientID identifies one connected ClientConn. IDs are assigned in
// order and never reused within a Broker's lifetime.
type ClientID uint64

// Broker owns the canonical CommandHistory and the table of connected
// clients' outbound queues (spec.md §4.4, §5). Registration and
// apply-and-broadcast share one lock, so a newly registering client's
// CommandsBulk snapshot is always consistent with what already-
// registered clients have already been sent — no notice can be applied
// to the history between a snapshot being taken and that client joining
// the broadcast table. Modeled on the teacher's LogBroadcaster channel
// table (internal/daemon/logs.go), generalized from "recent log lines"
// to the full command history and from raw text to typed notices.
type Broker struct {
	mu           sync.RWMutex
	history      *history.CommandHistory
	clients      map[ClientID]*outboundQueue
	nextClientID ClientID
}

// NewBroker returns an empty Broker with no history and no clients.
func NewBroker() *Broker {
	return &Broker{
		history:      history.New(),
		clients:      make(map[ClientID]*outboundQueue),
		nextClientID: 1,
	}
}

// NextClientID allocates the next ClientID.
func (b *Broker) NextClientID() ClientID {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextClientID
	b.nextClientID++
	return id
}

// NewCommandID allocates the next CommandID under the broker's write
// lock, so concurrent RunCommand requests from different clients never
// race for the same id.
func (b *Broker) NewCommandID() history.CommandID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history.NextID()
}

// Register snapshots the history, pushes it onto a fresh queue as a
// CommandsBulk notice, and only then adds that queue to the broadcast
// table — all inside one critical section (spec.md §4.4, invariant
// P1/P4). Doing these three steps under separate lock acquisitions
// would let a concurrent Emit/EmitStarted land a per-id notice on the
// queue ahead of the bulk once the queue is registered but before the
// bulk is pushed; the client would then see Output/Err for an id its
// replica doesn't know yet and silently drop it.
func (b *Broker) Register(id ClientID) *outboundQueue {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := newOutboundQueue()

	entries := make([]protocol.BulkEntry, 0, b.history.Len())
	for _, e := range b.history.Ascending() {
		entries = append(entries, protocol.BulkEntry{ID: e.ID, Command: e.Command})
	}
	q.Push(protocol.ServerMessage{ID: 0, Notice: protocol.CommandsBulk(entries)})

	b.clients[id] = q
	return q
}

// Unregister removes id from the broadcast table and closes its queue.
// Any ChildTask started by id's connection is unaffected — it keeps
// running and broadcasting to the remaining clients (spec.md §4.3).
func (b *Broker) Unregister(id ClientID) {
	b.mu.Lock()
	q, ok := b.clients[id]
	delete(b.clients, id)
	b.mu.Unlock()
	if ok {
		q.Close()
	}
}

// Emit applies notice to the canonical history — the broker is its sole
// writer — and fans a copy out to every registered client's outbound
// queue, as one critical section (spec.md §4.4, §5, invariant P3/P4).
// Every recipient's envelope id is 0: these are unsolicited notices, not
// an echo of a request.
func (b *Broker) Emit(notice protocol.Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.apply(notice)

	msg := protocol.ServerMessage{ID: 0, Notice: notice}
	for _, q := range b.clients {
		q.Push(msg)
	}
}

// EmitStarted broadcasts a CommandStarted notice the same way Emit
// does, except originClient's copy echoes requestID in its envelope id
// (spec.md §4.1, §4.6: "id echoes the originating ClientMessage.id"),
// while every other client's copy carries envelope id 0.
func (b *Broker) EmitStarted(id history.CommandID, text string, originClient ClientID, requestID uint32) {
	notice := protocol.CommandStarted(id, text)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.apply(notice)

	for clientID, q := range b.clients {
		envelopeID := uint32(0)
		if clientID == originClient {
			envelopeID = requestID
		}
		q.Push(protocol.ServerMessage{ID: envelopeID, Notice: notice})
	}
}

func (b *Broker) apply(notice protocol.Notice) {
	switch notice.Kind {
	case protocol.NoticeCommandStarted:
		b.history.Start(notice.ID, notice.Text)
	case protocol.NoticeCommandOutput:
		if !b.history.AppendStdout(notice.ID, notice.Text) {
			slog.Error("broker-invariant: output for unknown command", "id", notice.ID)
		}
	case protocol.NoticeCommandErr:
		if !b.history.AppendStderr(notice.ID, notice.Text) {
			slog.Error("broker-invariant: stderr for unknown command", "id", notice.ID)
		}
	case protocol.NoticeCommandCompleted:
		if !b.history.Complete(notice.ID, notice.ExitCode) {
			slog.Error("broker-invariant: duplicate or unknown completion", "id", notice.ID)
		}
	case protocol.NoticeCommandsBulk:
		// Only ever produced by Register as a point-in-time snapshot;
		// never routed through Emit by a producer.
	}
}

// ClientCount reports how many clients are currently registered, for
// tests and diagnostics.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// History returns a read-only snapshot of the canonical history's
// ascending entries, for tests and diagnostics.
func (b *Broker) History() []history.Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.history.Ascending()
}
