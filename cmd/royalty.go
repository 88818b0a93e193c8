package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3vault/internal/config"
	"github.com/Mohsinsiddi/w3vault/internal/market"
	"github.com/Mohsinsiddi/w3vault/internal/ui"
)

var (
	royaltyCollection string
	royaltyReceiver   string
	royaltyBps        int
)

var royaltyCmd = &cobra.Command{
	Use:   "royalty <price>",
	Short: "Show how a sale price splits between seller and royalty receiver",
	Long: `Show how a sale price splits. Terms come from the configured royalty
table (per collection, falling back to the default); --receiver and --bps
override them. Royalties are rounded half up.

Examples:
  w3vault royalty 1.5eth
  w3vault royalty 100PFT --collection punks
  w3vault royalty 250 --receiver artist --bps 750`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d := denom()
		price, err := parseAmount(args[0], d.Symbol, d.Decimals)
		if err != nil {
			return err
		}
		table, err := royaltyTable(cfg)
		if err != nil {
			return err
		}

		var collection common.Address
		if royaltyCollection != "" {
			if collection, err = resolveAddress(cfg, royaltyCollection); err != nil {
				return err
			}
		}
		receiver, bps := table.RoyaltyInfo(collection, nil)
		if royaltyReceiver != "" {
			if receiver, err = resolveAddress(cfg, royaltyReceiver); err != nil {
				return err
			}
		}
		if royaltyBps >= 0 {
			if royaltyBps > market.MaxBps {
				return fmt.Errorf("%w: %d bps", market.ErrInvalidRoyalty, royaltyBps)
			}
			bps = uint16(royaltyBps)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.SplitBlock(market.SplitPrice(price, receiver, bps), d))
		if receiver == (common.Address{}) {
			fmt.Fprintln(out, ui.Hint("No royalty receiver configured. Set one with: w3vault config set market.default_royalty_receiver <address>"))
		}
		return nil
	},
}

// royaltyTable builds the marketplace's royalty source from config.
func royaltyTable(c *config.Config) (*market.RoyaltyTable, error) {
	var def common.Address
	if c.Market.DefaultRoyaltyReceiver != "" {
		def = common.HexToAddress(c.Market.DefaultRoyaltyReceiver)
	}
	table, err := market.NewRoyaltyTable(def, c.Market.DefaultRoyaltyBps)
	if err != nil {
		return nil, err
	}
	for _, r := range c.Market.Royalties {
		if err := table.Set(common.HexToAddress(r.Collection), common.HexToAddress(r.Receiver), r.Bps); err != nil {
			return nil, fmt.Errorf("royalty for %s: %w", r.Collection, err)
		}
	}
	return table, nil
}

func init() {
	royaltyCmd.Flags().StringVar(&royaltyCollection, "collection", "", "collection address or account name")
	royaltyCmd.Flags().StringVar(&royaltyReceiver, "receiver", "", "override the royalty receiver")
	royaltyCmd.Flags().IntVar(&royaltyBps, "bps", -1, "override the royalty rate in basis points")
}
