package daemon

import (
	"testing"

	"github.com/tene/weaver/internal/protocol"
)

func TestRegisterReturnsEmptyBulkOnFreshBroker(t *testing.T) {
	b := NewBroker()
	id := b.NextClientID()
	q := b.Register(id)

	msg, ok := q.Pop()
	if !ok {
		t.Fatal("Register() on fresh broker: queue closed before bulk was popped")
	}
	if msg.Notice.Kind != protocol.NoticeCommandsBulk {
		t.Fatalf("Register() notice kind = %v, want CommandsBulk", msg.Notice.Kind)
	}
	if len(msg.Notice.Bulk) != 0 {
		t.Errorf("Register() on fresh broker: bulk = %v, want empty", msg.Notice.Bulk)
	}
}

func TestEmitAppliesToHistoryAndBroadcastsToAllClients(t *testing.T) {
	b := NewBroker()
	id1 := b.NextClientID()
	q1 := b.Register(id1)
	id2 := b.NextClientID()
	q2 := b.Register(id2)

	cmdID := b.NewCommandID()
	b.Emit(protocol.CommandStarted(cmdID, "echo hi"))
	b.Emit(protocol.CommandOutput(cmdID, "hi\n"))
	b.Emit(protocol.CommandCompleted(cmdID, 0))

	for name, q := range map[string]*outboundQueue{"q1": q1, "q2": q2} {
		for i, wantKind := range []protocol.NoticeKind{
			protocol.NoticeCommandsBulk,
			protocol.NoticeCommandStarted,
			protocol.NoticeCommandOutput,
			protocol.NoticeCommandCompleted,
		} {
			msg, ok := q.Pop()
			if !ok {
				t.Fatalf("%s: Pop() %d: queue closed early", name, i)
			}
			if msg.Notice.Kind != wantKind {
				t.Errorf("%s: Pop() %d kind = %v, want %v", name, i, msg.Notice.Kind, wantKind)
			}
		}
	}

	entries := b.History()
	if len(entries) != 1 || entries[0].Command.Stdout != "hi\n" || entries[0].Command.Status == nil || *entries[0].Command.Status != 0 {
		t.Errorf("History() = %+v, want one completed command with stdout 'hi\\n'", entries)
	}
}

func TestRegisterAfterEmitSeesConsistentSnapshot(t *testing.T) {
	b := NewBroker()
	cmdID := b.NewCommandID()
	b.Emit(protocol.CommandStarted(cmdID, "echo hi"))
	b.Emit(protocol.CommandOutput(cmdID, "hi\n"))
	b.Emit(protocol.CommandCompleted(cmdID, 0))

	lateID := b.NextClientID()
	q := b.Register(lateID)

	msg, ok := q.Pop()
	if !ok {
		t.Fatal("late Register(): queue closed before bulk was popped")
	}
	if len(msg.Notice.Bulk) != 1 {
		t.Fatalf("late Register() bulk len = %d, want 1", len(msg.Notice.Bulk))
	}
	entry := msg.Notice.Bulk[0]
	if entry.ID != cmdID || entry.Command.Stdout != "hi\n" || entry.Command.Status == nil || *entry.Command.Status != 0 {
		t.Errorf("late Register() bulk entry = %+v, want completed snapshot", entry)
	}
}

func TestUnregisterClosesQueueAndStopsBroadcast(t *testing.T) {
	b := NewBroker()
	id := b.NextClientID()
	q := b.Register(id)

	if _, ok := q.Pop(); !ok {
		t.Fatal("registered queue: Pop() of bulk failed")
	}

	b.Unregister(id)
	if b.ClientCount() != 0 {
		t.Errorf("ClientCount() after Unregister = %d, want 0", b.ClientCount())
	}

	if _, ok := q.Pop(); ok {
		t.Error("Pop() on unregistered client's queue: want ok=false, got true")
	}

	// Emitting after unregistration must not panic or deliver anything
	// to the removed client.
	cmdID := b.NewCommandID()
	b.Emit(protocol.CommandStarted(cmdID, "echo hi"))
	if q.Len() != 0 {
		t.Errorf("removed client's queue Len() after Emit = %d, want 0", q.Len())
	}
}

func TestEmitStartedEchoesRequestIDOnlyToOriginator(t *testing.T) {
	b := NewBroker()
	originID := b.NextClientID()
	originQ := b.Register(originID)
	otherID := b.NextClientID()
	otherQ := b.Register(otherID)

	if _, ok := originQ.Pop(); !ok {
		t.Fatal("origin queue: Pop() of bulk failed")
	}
	if _, ok := otherQ.Pop(); !ok {
		t.Fatal("other queue: Pop() of bulk failed")
	}

	cmdID := b.NewCommandID()
	b.EmitStarted(cmdID, "echo hi", originID, 42)

	msg, ok := originQ.Pop()
	if !ok {
		t.Fatal("origin queue: Pop() failed")
	}
	if msg.ID != 42 {
		t.Errorf("origin envelope id = %d, want 42 (echo of request id)", msg.ID)
	}

	msg, ok = otherQ.Pop()
	if !ok {
		t.Fatal("other queue: Pop() failed")
	}
	if msg.ID != 0 {
		t.Errorf("other client's envelope id = %d, want 0 (unsolicited)", msg.ID)
	}
}

func TestNewCommandIDsAreUniqueAndIncreasing(t *testing.T) {
	b := NewBroker()
	prev := b.NewCommandID()
	for i := 0; i < 10; i++ {
		next := b.NewCommandID()
		if next <= prev {
			t.Fatalf("NewCommandID() = %d, want > %d", next, prev)
		}
		prev = next
	}
}
