package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3vault/internal/config"
	"github.com/Mohsinsiddi/w3vault/internal/secrets"
	"github.com/Mohsinsiddi/w3vault/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s\n\n", ui.StyleTitle.Render("Current Configuration"))
		fmt.Fprintln(out, string(data))
		fmt.Fprintln(out, ui.Meta("Config directory: "+cfg.Dir()))
		fmt.Fprintln(out, ui.Meta("Index database:   "+cfg.IndexPath()))
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting",
	Long:  "Print one setting. Keys: " + strings.Join(config.Keys(), ", "),
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := cfg.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Long:  "Change one setting. Keys: " + strings.Join(config.Keys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := cfg.Set(key, value); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("%s set to %q", key, value)))
		return nil
	},
}

var configSetRoyaltyCmd = &cobra.Command{
	Use:   "set-royalty <collection> <receiver> <bps>",
	Short: "Add or override a collection's royalty",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		af, err := cfg.LoadAccounts()
		if err != nil {
			return err
		}
		collection, err := af.Resolve(args[0])
		if err != nil {
			return err
		}
		receiver, err := af.Resolve(args[1])
		if err != nil {
			return err
		}
		bps, err := strconv.ParseUint(args[2], 10, 16)
		if err != nil {
			return fmt.Errorf("bps must be a whole number: %w", err)
		}
		if err := cfg.SetRoyalty(collection.Hex(), receiver.Hex(), uint16(bps)); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("Royalty for %s set to %d bps → %s",
			ui.TruncateAddr(collection.Hex()), bps, ui.Addr(receiver.Hex()))))
		return nil
	},
}

var configRemoveRoyaltyCmd = &cobra.Command{
	Use:   "remove-royalty <collection>",
	Short: "Drop a collection's royalty (the default applies again)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		af, err := cfg.LoadAccounts()
		if err != nil {
			return err
		}
		collection, err := af.Resolve(args[0])
		if err != nil {
			return err
		}
		if err := cfg.RemoveRoyalty(collection.Hex()); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success("Royalty removed for "+collection.Hex()))
		return nil
	},
}

var configSetRedisPasswordCmd = &cobra.Command{
	Use:   "set-redis-password",
	Short: "Store the Redis password in the OS keychain",
	Long: `Read the Redis password from stdin and store it in the OS keychain
(or an encrypted file in the config directory when no keychain exists).
It is used whenever redis_url carries no password of its own.
W3VAULT_REDIS_PASSWORD overrides the stored value.

  echo "$REDIS_PASSWORD" | w3vault config set-redis-password`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pw, err := readSecret(cmd.InOrStdin())
		if err != nil {
			return err
		}
		store, err := secrets.Open(cfg.Dir())
		if err != nil {
			return err
		}
		if err := store.Set(secrets.RedisPassword, pw); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success("Redis password stored in keychain"))
		return nil
	},
}

var configClearRedisPasswordCmd = &cobra.Command{
	Use:   "clear-redis-password",
	Short: "Remove the stored Redis password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := secrets.Open(cfg.Dir())
		if err != nil {
			return err
		}
		if err := store.Delete(secrets.RedisPassword); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success("Redis password removed"))
		return nil
	},
}

// readSecret reads the first line of r.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no password on stdin")
	}
	return line, nil
}

func init() {
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd, configSetRoyaltyCmd, configRemoveRoyaltyCmd,
		configSetRedisPasswordCmd, configClearRedisPasswordCmd)
}
