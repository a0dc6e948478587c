package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/tene/weaver/internal/core"
)

// NewRootCommand builds the `weaver` command tree: daemon, run, history,
// and version (spec.md §2). Modeled on the teacher's root.go: a
// PersistentPreRunE that installs the tint slog handler before any
// subcommand runs, plus a persistent --socket-path flag in place of the
// teacher's --config-path.
func NewRootCommand() *cobra.Command {
	var socketPath string
	var verbose int

	defaultSocketPath, _ := core.GetSocketPath()

	rootCmd := &cobra.Command{
		Use:   "weaver",
		Short: "Weaver - local command execution daemon and client",
		Long:  `Weaver runs shell commands through a background daemon, fanning each command's output out to every connected client.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose > 0 {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(
				tint.NewHandler(os.Stderr, &tint.Options{
					Level:      level,
					TimeFormat: time.DateTime,
				}),
			))

			if socketPath == "" {
				path, err := core.GetSocketPath()
				if err != nil {
					return fmt.Errorf("resolve socket path: %w", err)
				}
				socketPath = path
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&socketPath, "socket-path", defaultSocketPath, "path to the weaver daemon's unix socket")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "more output, repeat for even more")

	rootCmd.AddCommand(
		NewDaemonCommand(&socketPath),
		NewRunCommand(&socketPath),
		NewHistoryCommand(&socketPath),
		NewVersionCommand(&socketPath),
	)

	return rootCmd
}
