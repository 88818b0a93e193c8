package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3vault/internal/events"
	"github.com/Mohsinsiddi/w3vault/internal/indexer"
	"github.com/Mohsinsiddi/w3vault/internal/ui"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Subscribe to the event channel and maintain the SQLite index",
	Long: `Subscribe to the configured Redis channel and fold every event into
the SQLite index: listing and grant records plus the raw event log.
Events are recognised by id, so redelivered events are skipped and restarting
is safe. Runs published separately are all indexed even though each numbers
its events from 1.

Stop with Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := indexer.Open(cfg.IndexPath())
		if err != nil {
			return err
		}
		defer store.Close()

		checkpoint, err := store.Checkpoint(ctx)
		if err != nil {
			return err
		}

		client, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()

		stream, err := events.NewRedisSource(client, cfg.EventChannel, events.WithRedisLogger(log)).Stream(ctx)
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", cfg.EventChannel, err)
		}

		log.WithFields(logrus.Fields{
			"db":         cfg.IndexPath(),
			"channel":    cfg.EventChannel,
			"checkpoint": checkpoint,
		}).Info("indexer started")
		fmt.Fprintln(cmd.OutOrStdout(), ui.Info(fmt.Sprintf("Indexing %s into %s (checkpoint %d). Ctrl+C to stop.",
			cfg.EventChannel, cfg.IndexPath(), checkpoint)))

		err = indexer.NewHandler(store, log).Run(ctx, stream)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		if last, cerr := store.Checkpoint(context.Background()); cerr == nil {
			log.WithField("checkpoint", last).Info("indexer stopped")
		}
		return err
	},
}
