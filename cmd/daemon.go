package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tene/weaver/internal/core"
	"github.com/tene/weaver/internal/daemon"
)

// NewDaemonCommand builds `weaver daemon`: it binds the socket, loads
// and watches the tunable config, and serves connections until
// SIGINT/SIGTERM (spec.md §4.2). Grounded on the teacher's daemon.go,
// generalized from a single Daemon.Run() call to the Listener/Broker
// pair and from the teacher's own signal handling in server.go.
func NewDaemonCommand(socketPath *string) *cobra.Command {
	var configPath string

	daemonCmd := &cobra.Command{
		Use:    "daemon",
		Short:  "Run the weaver daemon in the foreground",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				path, err := core.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				configPath = path
			}

			cfg, err := core.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			core.SetConfig(cfg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			core.WatchConfig(ctx, configPath, func(reloaded *core.Configuration) {
				core.SetConfig(reloaded)
			})

			ln, err := daemon.Listen(*socketPath)
			if err != nil {
				return fmt.Errorf("start daemon: %w", err)
			}
			defer ln.Close()

			slog.Info("weaver daemon listening", "socket", *socketPath)
			ln.Serve(ctx)
			slog.Info("weaver daemon shutting down")
			return nil
		},
	}

	daemonCmd.Flags().StringVar(&configPath, "config-path", "", "path to the weaver tunables config file")

	return daemonCmd
}
