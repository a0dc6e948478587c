package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tene/weaver/internal/client"
	"github.com/tene/weaver/internal/history"
	"github.com/tene/weaver/internal/protocol"
)

// NewRunCommand builds `weaver run <command...>`: it ensures a daemon is
// reachable, submits the joined argument list as one command, and
// streams its stdout/stderr to the terminal until Completed, exiting
// with the child's exit code (spec.md §4.6).
func NewRunCommand(socketPath *string) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run <command...>",
		Short: "Submit a command to the daemon and stream its output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")

			if err := client.EnsureDaemonRunning(*socketPath); err != nil {
				return fmt.Errorf("start daemon: %w", err)
			}

			conn, err := client.Dial(*socketPath)
			if err != nil {
				return err
			}
			defer conn.Close()

			reqID, err := conn.RunCommand(text)
			if err != nil {
				return fmt.Errorf("submit command: %w", err)
			}

			var cmdID history.CommandID
			var exitCode int32
			var done bool

			listenErr := conn.Listen(func(msg protocol.ServerMessage) {
				if done {
					return
				}
				n := msg.Notice
				switch n.Kind {
				case protocol.NoticeCommandStarted:
					// Only this connection's own submission has its
					// CommandStarted envelope id echoed back to reqID
					// (spec.md §4.6); other clients' commands arrive
					// with envelope id 0 and must not be mistaken for
					// ours.
					if msg.ID == reqID {
						cmdID = n.ID
					}
				case protocol.NoticeCommandOutput:
					if n.ID == cmdID {
						fmt.Fprint(os.Stdout, n.Text)
					}
				case protocol.NoticeCommandErr:
					if n.ID == cmdID {
						fmt.Fprint(os.Stderr, n.Text)
					}
				case protocol.NoticeCommandCompleted:
					if n.ID == cmdID {
						exitCode = n.ExitCode
						done = true
						conn.Close()
					}
				}
			})
			if listenErr != nil && !done {
				return fmt.Errorf("stream command output: %w", listenErr)
			}

			if exitCode != 0 {
				os.Exit(int(exitCode))
			}
			return nil
		},
	}

	return runCmd
}
