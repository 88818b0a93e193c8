package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3vault/internal/config"
	"github.com/Mohsinsiddi/w3vault/internal/logging"
	"github.com/Mohsinsiddi/w3vault/internal/ui"
)

// Version is the current release. Overridable via build ldflags:
//
//	go build -ldflags "-X github.com/Mohsinsiddi/w3vault/cmd.Version=1.2.3" .
var Version = "0.3.0"

var (
	cfgDir  string
	cfg     *config.Config
	log     *logrus.Entry
	verbose bool
)

// rootCmd is the top-level command.
var rootCmd = &cobra.Command{
	Use:   "w3vault",
	Short: "Token vesting & NFT marketplace ledger",
	Long: `w3vault — token vesting and NFT marketplace accounting from the terminal.

  Preview cliff schedules and royalty splits, replay scripted vault and
  marketplace sessions, and index their events into a local SQLite
  database served over HTTP.

Events travel over Redis pub/sub: "simulate --publish" writes them,
"index" and "watch" read them.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load config (skip for commands that don't need it).
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgDir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		logger, err := logging.New(level, cfg.LogFormat, cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("configuring logger: %w", err)
		}
		log = logrus.NewEntry(logger).WithField("cmd", cmd.Name())
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), ui.Banner(Version))
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// denom is the configured token's display unit.
func denom() ui.Denom {
	return denomFor(cfg.TokenSymbol, uint8(cfg.TokenDecimals))
}

func init() {
	// W3VAULT_CONFIG_DIR env var overrides --config flag.
	if envDir := os.Getenv("W3VAULT_CONFIG_DIR"); envDir != "" {
		cfgDir = envDir
	}

	rootCmd.PersistentFlags().StringVar(&cfgDir, "config", cfgDir, "config directory (default: ~/.w3vault)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	// Register all sub-commands.
	rootCmd.AddCommand(
		configCmd,
		accountCmd,
		convertCmd,
		topicsCmd,
		scheduleCmd,
		royaltyCmd,
		simulateCmd,
		indexCmd,
		serveCmd,
		watchCmd,
		listingsCmd,
		grantsCmd,
	)
}
