package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/tene/weaver/internal/core"
	"github.com/tene/weaver/internal/history"
	"github.com/tene/weaver/internal/protocol"
)

// readWorkers bounds the number of goroutines concurrently blocked on a
// child's stdout/stderr pipes. This realizes spec.md §4.5's "bounded
// worker pool" fallback: OS pipes on this platform offer no portable
// asynchronous read, so each relay goroutine occupies one slot for the
// life of its stream rather than being multiplexed cooperatively.
var readWorkers = semaphore.NewWeighted(256)

// ChildTask owns one running child process: it spawns `bash -c <text>`
// with its stdin closed, relays stdout/stderr as chunked notices, and
// emits exactly one CommandCompleted notice once both streams have hit
// EOF and the process has been reaped (spec.md §4.5, invariant P1/P2).
type ChildTask struct {
	ID         history.CommandID
	Text       string
	emit       func(protocol.Notice)
	chunkSize  int
	readBudget int
}

// NewChildTask builds a ChildTask that reports notices through emit
// (ordinarily Broker.Emit).
func NewChildTask(id history.CommandID, text string, emit func(protocol.Notice)) *ChildTask {
	cfg := core.GetConfig()
	if cfg == nil {
		cfg = core.GetDefaultConfig()
	}
	return &ChildTask{ID: id, Text: text, emit: emit, chunkSize: cfg.ChunkSize, readBudget: cfg.ReadBudget}
}

// Run spawns and supervises the child to completion. It blocks until the
// child has exited and both streams have drained. A spawn failure never
// escapes as a Go error — spec.md §7 treats it as a synthetic stderr
// line plus a CommandCompleted, so the history stays consistent for
// every submitted command.
func (t *ChildTask) Run(ctx context.Context) {
	cmd := exec.Command("bash", "-c", t.Text)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.fail(fmt.Errorf("child-spawn: stdout pipe: %w", err))
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		t.fail(fmt.Errorf("child-spawn: stderr pipe: %w", err))
		return
	}

	if err := cmd.Start(); err != nil {
		t.fail(fmt.Errorf("child-spawn: %w", err))
		return
	}

	var g errgroup.Group
	g.Go(func() error { return t.relay(ctx, stdout, protocol.CommandOutput) })
	g.Go(func() error { return t.relay(ctx, stderr, protocol.CommandErr) })
	if err := g.Wait(); err != nil {
		slog.Warn("child-io error, treating stream as closed", "id", t.ID, "error", err)
	}

	exitCode := exitCodeOf(cmd.Wait())
	t.emit(protocol.CommandCompleted(t.ID, exitCode))
}

func (t *ChildTask) fail(err error) {
	slog.Error("child-spawn failed", "id", t.ID, "error", err)
	t.emit(protocol.CommandErr(t.ID, err.Error()+"\n"))
	t.emit(protocol.CommandCompleted(t.ID, 127))
}

// relay reads r in chunks of up to chunkSize bytes and emits one notice
// per non-empty chunk via build. Invalid UTF-8 sequences are lossily
// replaced (spec.md §4.5) since a command's output is arbitrary bytes
// but the wire protocol's Text field is a Go string. A cooperative
// budget of readBudget reads is honored per scheduling turn (spec.md
// §4.7) before the goroutine yields back to the runtime scheduler.
func (t *ChildTask) relay(ctx context.Context, r io.Reader, build func(history.CommandID, string) protocol.Notice) error {
	if err := readWorkers.Acquire(ctx, 1); err != nil {
		return err
	}
	defer readWorkers.Release(1)

	reader := bufio.NewReaderSize(r, t.chunkSize)
	buf := make([]byte, t.chunkSize)
	reads := 0
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			t.emit(build(t.ID, strings.ToValidUTF8(string(buf[:n]), "�")))
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		reads++
		if reads >= t.readBudget {
			reads = 0
			runtime.Gosched()
		}
	}
}

// exitCodeOf extracts the shell's integer exit status from cmd.Wait()'s
// error, substituting -1 when the child was terminated by a signal and
// so has no conventional exit code (spec.md §4.5, boundary B2).
func exitCodeOf(err error) int32 {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Exited() {
				return int32(status.ExitStatus())
			}
			return -1
		}
		return int32(exitErr.ExitCode())
	}
	return -1
}
