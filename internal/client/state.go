// Package client implements the CLI-facing half of weaver: a socket
// connection to the daemon (spec.md §4.6) and a local replica of the
// command history built by applying the notices that connection
// receives.
package client

import (
	"sync"

	"github.com/tene/weaver/internal/history"
	"github.com/tene/weaver/internal/protocol"
)

// State is a client's local replica of the daemon's CommandHistory. It
// never assigns CommandIDs itself; it only applies notices that
// originated from the daemon (spec.md §4.6, invariant P5).
type State struct {
	mu      sync.RWMutex
	history *history.CommandHistory
}

// NewState returns an empty replica.
func NewState() *State {
	return &State{history: history.New()}
}

// Apply applies one notice to the replica. Unknown notice kinds are
// ignored rather than rejected here — Connection's decode loop already
// rejects unknown wire variants before a notice ever reaches Apply.
func (s *State) Apply(n protocol.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch n.Kind {
	case protocol.NoticeCommandsBulk:
		for _, e := range n.Bulk {
			s.history.Put(e.ID, e.Command)
		}
	case protocol.NoticeCommandStarted:
		s.history.Start(n.ID, n.Text)
	case protocol.NoticeCommandOutput:
		s.history.AppendStdout(n.ID, n.Text)
	case protocol.NoticeCommandErr:
		s.history.AppendStderr(n.ID, n.Text)
	case protocol.NoticeCommandCompleted:
		s.history.Complete(n.ID, n.ExitCode)
	}
}

// Get returns a snapshot of id's command, and whether it is known.
func (s *State) Get(id history.CommandID) (history.WeaverCommand, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.history.Get(id)
	if !ok {
		return history.WeaverCommand{}, false
	}
	return *c, true
}

// Ascending returns every known command in ascending CommandID order.
func (s *State) Ascending() []history.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Ascending()
}

// Descending returns every known command in descending CommandID order
// (most recent first), the order the `weaver history` CLI surface
// displays by default.
func (s *State) Descending() []history.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Descending()
}

// Len reports how many commands the replica currently knows about.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Len()
}
