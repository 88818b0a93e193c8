package cmd

import (
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3vault/internal/ui"
	"github.com/Mohsinsiddi/w3vault/internal/units"
)

var convertCmd = &cobra.Command{
	Use:   "convert <amount>",
	Short: "Convert between wei, gwei, ether and the vault token",
	Long: `Convert an amount between units. The amount is a base-unit integer
or carries a unit suffix.

Examples:
  w3vault convert 1.5eth
  w3vault convert "30 gwei"
  w3vault convert 2500000000000000000000
  w3vault convert 1000PFT          # configured token symbol`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d := denom()
		v, err := parseAmount(args[0], d.Symbol, d.Decimals)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.KeyValueBlock("Unit Conversion", conversions(v, d)))
		return nil
	},
}

func conversions(v *big.Int, d ui.Denom) [][2]string {
	token := d.Symbol
	if token == "" {
		token = "Token"
	}
	return [][2]string{
		{"Base units", ui.Val(v.String())},
		{"Gwei", units.FormatUnits(v, units.Gwei)},
		{"Ether", units.FormatUnits(v, units.Ether)},
		{fmt.Sprintf("%s (%d dp)", token, d.Decimals), d.Format(v)},
	}
}
