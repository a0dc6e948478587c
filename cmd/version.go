package cmd

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tene/weaver/internal/core"
)

// NewVersionCommand builds `weaver version`. Weaver's wire protocol has
// no version-query request (spec.md §4.1 defines only RunCommand), so
// unlike the teacher's version.go this only reports whether a daemon is
// reachable at all, not its version.
func NewVersionCommand(socketPath *string) *cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show client version and daemon reachability",
		Run: func(cmd *cobra.Command, args []string) {
			clientFormatted := core.FormatVersion(core.Version)
			fmt.Fprintf(os.Stderr, "Client version: %s\n", clientFormatted)

			conn, err := net.DialTimeout("unix", *socketPath, 500*time.Millisecond)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Daemon: not running")
				return
			}
			conn.Close()
			fmt.Fprintln(os.Stderr, "Daemon: running")
		},
	}

	return versionCmd
}
