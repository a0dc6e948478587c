// Package protocol implements weaver's wire protocol (spec.md §4.1): a
// length-prefixed, self-describing, binary-safe encoding of ClientMessage
// and ServerMessage, one message per frame, individually decodable from a
// stream without knowing its size in advance.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/tene/weaver/internal/history"
)

// maxFrameSize bounds a single frame's payload. Weaver is not defending
// against a hostile client (spec.md §4.3), but a corrupt length prefix
// should fail fast as a protocol-decode error rather than attempt an
// unbounded allocation.
const maxFrameSize = 64 * 1024 * 1024

// RequestKind tags a ClientMessage's request variant. RunCommand is the
// only variant in scope (spec.md §4.1); carrying the tag on the wire
// means a peer that ever sends an unrecognized one produces a rejectable
// decode error instead of silently-wrong behavior.
type RequestKind string

const RequestRunCommand RequestKind = "run_command"

// ClientMessage is {id, request}: the request-id the client assigned
// this message (§4.6), paired with its tagged request variant.
type ClientMessage struct {
	ID      uint32
	Request ClientRequest
}

// ClientRequest is the tagged request-variant payload.
type ClientRequest struct {
	Kind RequestKind
	Text string `cbor:",omitempty"`
}

// RunCommand builds the (only in-scope) RunCommand request variant.
func RunCommand(text string) ClientRequest {
	return ClientRequest{Kind: RequestRunCommand, Text: text}
}

func (r ClientRequest) validate() error {
	switch r.Kind {
	case RequestRunCommand:
		return nil
	default:
		return fmt.Errorf("protocol-decode: unknown client request variant %q", r.Kind)
	}
}

// NoticeKind tags a ServerMessage's notice variant (spec.md §3).
type NoticeKind string

const (
	NoticeCommandsBulk     NoticeKind = "commands_bulk"
	NoticeCommandStarted   NoticeKind = "command_started"
	NoticeCommandOutput    NoticeKind = "command_output"
	NoticeCommandErr       NoticeKind = "command_err"
	NoticeCommandCompleted NoticeKind = "command_completed"
)

// BulkEntry is one (CommandId, WeaverCommand) pair inside a CommandsBulk
// snapshot.
type BulkEntry struct {
	ID      history.CommandID
	Command history.WeaverCommand
}

// Notice is the tagged ServerMessage payload variant. Only the fields
// relevant to Kind are populated; the rest are left zero.
type Notice struct {
	Kind     NoticeKind
	Bulk     []BulkEntry       `cbor:",omitempty"`
	ID       history.CommandID `cbor:",omitempty"`
	Text     string            `cbor:",omitempty"`
	ExitCode int32             `cbor:",omitempty"`
}

// ServerMessage is {id, notice}: id echoes the originating
// ClientMessage.id, or 0 for unsolicited notices such as CommandsBulk.
type ServerMessage struct {
	ID     uint32
	Notice Notice
}

func CommandsBulk(entries []BulkEntry) Notice {
	return Notice{Kind: NoticeCommandsBulk, Bulk: entries}
}

func CommandStarted(id history.CommandID, cmd string) Notice {
	return Notice{Kind: NoticeCommandStarted, ID: id, Text: cmd}
}

func CommandOutput(id history.CommandID, chunk string) Notice {
	return Notice{Kind: NoticeCommandOutput, ID: id, Text: chunk}
}

func CommandErr(id history.CommandID, chunk string) Notice {
	return Notice{Kind: NoticeCommandErr, ID: id, Text: chunk}
}

func CommandCompleted(id history.CommandID, exitCode int32) Notice {
	return Notice{Kind: NoticeCommandCompleted, ID: id, ExitCode: exitCode}
}

func (n Notice) validate() error {
	switch n.Kind {
	case NoticeCommandsBulk, NoticeCommandStarted, NoticeCommandOutput, NoticeCommandErr, NoticeCommandCompleted:
		return nil
	default:
		return fmt.Errorf("protocol-decode: unknown server notice variant %q", n.Kind)
	}
}

// WriteFrame writes a single length-prefixed frame: a 4-byte big-endian
// length followed by payload. Individually decodable from the stream by
// ReadFrame without any other context (spec.md §4.1(b)).
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("socket-io: write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("socket-io: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads a single length-prefixed frame's payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("protocol-decode: frame length %d exceeds max %d", n, maxFrameSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("socket-io: read frame payload: %w", err)
	}
	return payload, nil
}

// WriteClientMessage encodes and frames a ClientMessage onto w.
func WriteClientMessage(w io.Writer, m ClientMessage) error {
	if err := m.Request.validate(); err != nil {
		return err
	}
	payload, err := cbor.Marshal(m)
	if err != nil {
		return fmt.Errorf("protocol-decode: encode client message: %w", err)
	}
	return WriteFrame(w, payload)
}

// ReadClientMessage reads and decodes one ClientMessage frame from r.
func ReadClientMessage(r io.Reader) (ClientMessage, error) {
	var m ClientMessage
	payload, err := ReadFrame(r)
	if err != nil {
		return m, err
	}
	if err := cbor.Unmarshal(payload, &m); err != nil {
		return m, fmt.Errorf("protocol-decode: decode client message: %w", err)
	}
	if err := m.Request.validate(); err != nil {
		return m, err
	}
	return m, nil
}

// WriteServerMessage encodes and frames a ServerMessage onto w.
func WriteServerMessage(w io.Writer, m ServerMessage) error {
	if err := m.Notice.validate(); err != nil {
		return err
	}
	payload, err := cbor.Marshal(m)
	if err != nil {
		return fmt.Errorf("protocol-decode: encode server message: %w", err)
	}
	return WriteFrame(w, payload)
}

// ReadServerMessage reads and decodes one ServerMessage frame from r.
func ReadServerMessage(r io.Reader) (ServerMessage, error) {
	var m ServerMessage
	payload, err := ReadFrame(r)
	if err != nil {
		return m, err
	}
	if err := cbor.Unmarshal(payload, &m); err != nil {
		return m, fmt.Errorf("protocol-decode: decode server message: %w", err)
	}
	if err := m.Notice.validate(); err != nil {
		return m, err
	}
	return m, nil
}
