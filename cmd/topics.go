package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/sha3"

	"github.com/Mohsinsiddi/w3vault/internal/events"
	"github.com/Mohsinsiddi/w3vault/internal/ui"
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List event signatures and their Keccak-256 topics",
	Long: `List every event the vault and marketplace emit with its topic and
4-byte selector, as an indexer filtering raw logs would see them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		t := ui.NewTable([]ui.Column{
			{Title: "Event", Width: 17},
			{Title: "Signature", Width: 52},
			{Title: "Selector", Width: 10},
			{Title: "Topic", Width: 66},
		})
		for _, k := range events.Kinds() {
			t.AddRow(ui.Row{
				ui.KindName(string(k)),
				events.Signature(k),
				events.Selector(k),
				ui.Meta(events.Topic(k).Hex()),
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		return nil
	},
}

var topicsHashCmd = &cobra.Command{
	Use:   "hash <input>",
	Short: "Compute the Keccak-256 of text or hex input",
	Long: `Compute the Keccak-256 hash of the given input.

If the input starts with 0x it is treated as raw hex bytes, otherwise as a
UTF-8 string.

Examples:
  w3vault topics hash "GrantAdded(address,uint256,uint256,uint256,uint256)"
  w3vault topics hash 0xdeadbeef`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, inputType, err := keccakInput(args[0])
		if err != nil {
			return err
		}
		hash := keccak256(data)

		pairs := [][2]string{
			{"Input", args[0]},
			{"Type", inputType},
			{"Keccak-256", ui.Val("0x" + hex.EncodeToString(hash))},
			{"Selector (4 bytes)", "0x" + hex.EncodeToString(hash[:4])},
		}
		if k, ok := knownTopic(hash); ok {
			pairs = append(pairs, [2]string{"Event", ui.KindName(string(k))})
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.KeyValueBlock("Keccak-256 Hash", pairs))
		return nil
	},
}

func keccakInput(input string) ([]byte, string, error) {
	if strings.HasPrefix(input, "0x") || strings.HasPrefix(input, "0X") {
		raw, err := hex.DecodeString(input[2:])
		if err != nil {
			return nil, "", fmt.Errorf("invalid hex input: %w", err)
		}
		return raw, "hex", nil
	}
	return []byte(input), "text", nil
}

func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// knownTopic reports which event, if any, hashes to hash.
func knownTopic(hash []byte) (events.Kind, bool) {
	for _, k := range events.Kinds() {
		if t := events.Topic(k); string(t[:]) == string(hash) {
			return k, true
		}
	}
	return "", false
}

func init() {
	topicsCmd.AddCommand(topicsHashCmd)
}
