package client

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/tene/weaver/internal/protocol"
)

// fakeDaemon accepts a single connection and hands it to handle, for
// exercising Connection against realistic wire traffic without the full
// internal/daemon package.
func fakeDaemon(t *testing.T, handle func(net.Conn)) (socketPath string, stop func()) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "weaver.socket")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("net.Listen() error: %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		handle(conn)
	}()
	return path, func() { ln.Close() }
}

func TestDialConnectsAndStateIsConnected(t *testing.T) {
	path, stop := fakeDaemon(t, func(conn net.Conn) { conn.Close() })
	defer stop()

	conn, err := Dial(path)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()
	if conn.State() != Connected {
		t.Errorf("State() = %v, want Connected", conn.State())
	}
}

func TestRunCommandAssignsIncrementingRequestIDs(t *testing.T) {
	received := make(chan protocol.ClientMessage, 3)
	path, stop := fakeDaemon(t, func(conn net.Conn) {
		defer conn.Close()
		for i := 0; i < 3; i++ {
			msg, err := protocol.ReadClientMessage(conn)
			if err != nil {
				return
			}
			received <- msg
		}
	})
	defer stop()

	conn, err := Dial(path)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()

	var ids []uint32
	for i := 0; i < 3; i++ {
		id, err := conn.RunCommand("echo hi")
		if err != nil {
			t.Fatalf("RunCommand() error: %v", err)
		}
		ids = append(ids, id)
	}
	if ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Errorf("request ids = %v, want [1 2 3]", ids)
	}

	for i := 0; i < 3; i++ {
		select {
		case msg := <-received:
			if msg.ID != ids[i] {
				t.Errorf("received msg.ID = %d, want %d", msg.ID, ids[i])
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for daemon to receive request")
		}
	}
}

func TestListenAppliesNoticesUntilEOF(t *testing.T) {
	path, stop := fakeDaemon(t, func(conn net.Conn) {
		defer conn.Close()
		protocol.WriteServerMessage(conn, protocol.ServerMessage{Notice: protocol.CommandStarted(1, "echo hi")})
		protocol.WriteServerMessage(conn, protocol.ServerMessage{Notice: protocol.CommandOutput(1, "hi\n")})
		protocol.WriteServerMessage(conn, protocol.ServerMessage{Notice: protocol.CommandCompleted(1, 0)})
	})
	defer stop()

	conn, err := Dial(path)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()

	state := NewState()
	if err := conn.Listen(func(msg protocol.ServerMessage) { state.Apply(msg.Notice) }); err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	if conn.State() != Failed {
		t.Errorf("State() after peer close = %v, want Failed", conn.State())
	}

	cmd, ok := state.Get(1)
	if !ok || cmd.Stdout != "hi\n" || cmd.Status == nil || *cmd.Status != 0 {
		t.Errorf("state after Listen = %+v, ok=%v, want completed command", cmd, ok)
	}
}
