package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3vault/internal/api"
	"github.com/Mohsinsiddi/w3vault/internal/config"
	"github.com/Mohsinsiddi/w3vault/internal/events"
	"github.com/Mohsinsiddi/w3vault/internal/indexer"
	"github.com/Mohsinsiddi/w3vault/internal/ui"
)

var (
	serveAddr  string
	serveIndex bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the index over HTTP",
	Long: `Serve the SQLite index as JSON:

  GET /healthz
  GET /listings?status=listed&seller=0x…&limit=50
  GET /listings/:id            (collection-tokenId)
  GET /grants
  GET /grants/:recipient
  GET /events?after=0&limit=100

With --index the indexer runs in the same process.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := indexer.Open(cfg.IndexPath())
		if err != nil {
			return err
		}
		defer store.Close()

		addr := serveAddr
		if addr == "" {
			addr = cfg.ListenAddr
		}
		srv := api.New(store, log)

		errc := make(chan error, 2)
		go func() { errc <- srv.Listen(addr) }()

		if serveIndex {
			client, err := openRedis(ctx, cfg.RedisURL)
			if err != nil {
				_ = srv.Shutdown(config.ShutdownTimeout)
				return err
			}
			defer client.Close()
			stream, err := events.NewRedisSource(client, cfg.EventChannel, events.WithRedisLogger(log)).Stream(ctx)
			if err != nil {
				_ = srv.Shutdown(config.ShutdownTimeout)
				return fmt.Errorf("subscribing to %s: %w", cfg.EventChannel, err)
			}
			go func() { errc <- indexer.NewHandler(store, log).Run(ctx, stream) }()
		}

		fmt.Fprintln(cmd.OutOrStdout(), ui.Info(fmt.Sprintf("Serving %s on %s. Ctrl+C to stop.", cfg.IndexPath(), addr)))

		select {
		case <-ctx.Done():
		case err = <-errc:
		}
		stop()
		if serr := srv.Shutdown(config.ShutdownTimeout); serr != nil {
			log.WithError(serr).Warn("shutting down api")
		}
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: config listen_addr)")
	serveCmd.Flags().BoolVar(&serveIndex, "index", false, "also run the indexer in this process")
}
