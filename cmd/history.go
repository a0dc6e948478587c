package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/tene/weaver/internal/client"
	"github.com/tene/weaver/internal/protocol"
)

const historyCmdTextWidth = 60

// NewHistoryCommand builds `weaver history`: it connects just long
// enough to receive the daemon's CommandsBulk catch-up snapshot (spec.md
// §4.3, §4.6) and prints it as a table, newest command first.
func NewHistoryCommand(socketPath *string) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List commands the daemon has run, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := client.Dial(*socketPath)
			if err != nil {
				return fmt.Errorf("connect to daemon: %w", err)
			}
			defer conn.Close()

			state := client.NewState()
			var gotBulk bool
			listenErr := conn.Listen(func(msg protocol.ServerMessage) {
				state.Apply(msg.Notice)
				if msg.Notice.Kind == protocol.NoticeCommandsBulk {
					gotBulk = true
					conn.Close()
				}
			})
			if listenErr != nil && !gotBulk {
				return fmt.Errorf("read history: %w", listenErr)
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"ID", "Command", "Status"})
			for _, e := range state.Descending() {
				text := e.Command.Cmd
				if len(text) > historyCmdTextWidth {
					text = text[:historyCmdTextWidth-1] + "…"
				}
				t.AppendRow(table.Row{e.ID, text, statusGlyph(e.Command.Status)})
			}
			t.Render()
			return nil
		},
	}

	return historyCmd
}

// statusGlyph renders a command's completion status as a short glyph:
// "…" while running, "✓" on a zero exit code, and "✗" followed by the
// exit code in parentheses otherwise.
func statusGlyph(status *int32) string {
	if status == nil {
		return "…"
	}
	if *status == 0 {
		return "✓"
	}
	return fmt.Sprintf("✗ (%d)", *status)
}
