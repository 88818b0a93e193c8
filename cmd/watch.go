package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3vault/internal/events"
	"github.com/Mohsinsiddi/w3vault/internal/ui"
)

var watchPlain bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the event channel live",
	Long: `Subscribe to the configured Redis channel and show events as they
arrive. Use ↑/↓ to move, enter to expand an event, q to quit.

With --plain events are printed one per line instead, for piping.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()

		stream, err := events.NewRedisSource(client, cfg.EventChannel, events.WithRedisLogger(log)).Stream(ctx)
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", cfg.EventChannel, err)
		}

		if !watchPlain {
			return ui.RunFeed(ctx, cfg.EventChannel, stream)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.Info("Watching "+cfg.EventChannel+". Ctrl+C to stop."))
		for env := range stream {
			writeEventLine(out, env)
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "print events line by line instead of the live view")
}
