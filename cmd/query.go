package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3vault/internal/indexer"
	"github.com/Mohsinsiddi/w3vault/internal/ui"
)

var (
	listingsStatus string
	listingsSeller string
	listingsLimit  int
)

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "Show indexed marketplace listings",
	Long: `Show listings from the SQLite index, most recently changed first.

Examples:
  w3vault listings
  w3vault listings --status listed
  w3vault listings --seller alice --limit 20`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := listingFilter(listingsStatus, listingsSeller, listingsLimit)
		if err != nil {
			return err
		}
		store, err := indexer.Open(cfg.IndexPath())
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.Listings(cmd.Context(), filter)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(records) == 0 {
			fmt.Fprintln(out, ui.Info("No listings indexed."))
			fmt.Fprintln(out, ui.Hint("Run w3vault index, then w3vault simulate <file> --publish"))
			return nil
		}
		fmt.Fprintln(out, ui.ListingsTable(records, denom()))
		fmt.Fprintln(out, ui.Meta(fmt.Sprintf("%d listing(s)", len(records))))
		return nil
	},
}

var grantsCmd = &cobra.Command{
	Use:   "grants",
	Short: "Show indexed vesting grants",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := indexer.Open(cfg.IndexPath())
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.Grants(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(records) == 0 {
			fmt.Fprintln(out, ui.Info("No grants indexed."))
			return nil
		}
		fmt.Fprintln(out, ui.GrantsTable(records, denom()))
		fmt.Fprintln(out, ui.Meta(fmt.Sprintf("%d grant(s)", len(records))))
		return nil
	},
}

func listingFilter(status, seller string, limit int) (indexer.ListingFilter, error) {
	var f indexer.ListingFilter
	if status != "" {
		st, err := indexer.ParseStatus(status)
		if err != nil {
			return f, err
		}
		f.Status = &st
	}
	if seller != "" {
		addr, err := resolveAddress(cfg, seller)
		if err != nil {
			return f, err
		}
		f.Seller = addr
	}
	if limit < 0 {
		return f, fmt.Errorf("limit must not be negative, got %d", limit)
	}
	f.Limit = limit
	return f, nil
}

func init() {
	listingsCmd.Flags().StringVar(&listingsStatus, "status", "", "listed, cancelled or bought")
	listingsCmd.Flags().StringVar(&listingsSeller, "seller", "", "seller address or account name")
	listingsCmd.Flags().IntVar(&listingsLimit, "limit", 0, "at most this many rows")
}
