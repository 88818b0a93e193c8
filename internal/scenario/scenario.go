// Package scenario replays scripted vault and marketplace sessions on a
// manual clock and reports what happened. Scenarios are YAML files.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrInvalid     = errors.New("invalid scenario")
	ErrExpectation = errors.New("expectation failed")
)

// File is a parsed scenario.
type File struct {
	Name  string    `yaml:"name"`
	Start time.Time `yaml:"start"`
	Token Token     `yaml:"token"`

	// Accounts are aliases; unless pinned in Addresses each derives its
	// address from the Keccak-256 of the alias.
	Accounts  []string          `yaml:"accounts"`
	Addresses map[string]string `yaml:"addresses"`
	Roles     Roles             `yaml:"roles"`

	Mint      map[string]string `yaml:"mint"`
	NFTs      []NFT             `yaml:"nfts"`
	Whitelist []string          `yaml:"whitelist"`

	Vesting Vesting `yaml:"vesting"`
	Market  Market  `yaml:"market"`

	Steps []Step `yaml:"steps"`
}

// Token describes the ledger's token.
type Token struct {
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
}

// Roles names the accounts holding privileged roles.
type Roles struct {
	VaultOwner  string `yaml:"vault_owner"`
	MarketOwner string `yaml:"market_owner"`
	Treasury    string `yaml:"treasury"`
	Claimer     string `yaml:"claimer"`
}

// NFT is a token minted before the first step.
type NFT struct {
	Token   string `yaml:"token"` // collection#id
	Owner   string `yaml:"owner"`
	Approve bool   `yaml:"approve"` // approve the marketplace
}

// Vesting configures the vault.
type Vesting struct {
	PayVestedOnRevoke bool `yaml:"pay_vested_on_revoke"`
	// TreasuryAllowance is what the treasury lets the vault pull. Empty
	// approves the treasury's whole balance after minting.
	TreasuryAllowance string `yaml:"treasury_allowance"`
}

// Market configures the marketplace royalties.
type Market struct {
	DefaultRoyaltyBps      uint16    `yaml:"default_royalty_bps"`
	DefaultRoyaltyReceiver string    `yaml:"default_royalty_receiver"`
	Royalties              []Royalty `yaml:"royalties"`
}

// Royalty is one collection's royalty terms.
type Royalty struct {
	Collection string `yaml:"collection"`
	Receiver   string `yaml:"receiver"`
	Bps        uint16 `yaml:"bps"`
}

// Step is one action, advance or assertion.
type Step struct {
	Action string            `yaml:"action"`
	As     string            `yaml:"as"`
	Args   map[string]string `yaml:"args"`
	Expect *Expect           `yaml:"expect"`

	// assert only
	Balances     map[string]string `yaml:"balances"`
	Claimable    map[string]string `yaml:"claimable"`
	Owners       map[string]string `yaml:"owners"`
	Listings     map[string]string `yaml:"listings"` // price, or "none"
	TotalClaimed string            `yaml:"total_claimed"`
}

// Expect constrains a step's outcome. Error names an engine error such as
// not_authorized; amounts use the same notation as Args.
type Expect struct {
	Error    string `yaml:"error"`
	Amount   string `yaml:"amount"`
	Royalty  string `yaml:"royalty"`
	Proceeds string `yaml:"proceeds"`
}

// Parse decodes a scenario strictly: unknown keys are errors.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	f.applyDefaults()
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Load reads and parses a scenario file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	f, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func (f *File) applyDefaults() {
	if f.Start.IsZero() {
		f.Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if f.Token.Symbol == "" {
		f.Token.Symbol = "VEST"
	}
	if f.Token.Decimals == 0 {
		f.Token.Decimals = 18
	}
	if f.Roles.VaultOwner == "" {
		f.Roles.VaultOwner = "owner"
	}
	if f.Roles.MarketOwner == "" {
		f.Roles.MarketOwner = f.Roles.VaultOwner
	}
	if f.Roles.Treasury == "" {
		f.Roles.Treasury = "treasury"
	}
}

func (f *File) validate() error {
	if len(f.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalid)
	}
	for i, s := range f.Steps {
		if _, ok := actions[s.Action]; !ok {
			return fmt.Errorf("%w: step %d: unknown action %q", ErrInvalid, i+1, s.Action)
		}
		if s.Expect != nil && s.Expect.Error != "" {
			if _, ok := namedErrors[s.Expect.Error]; !ok {
				return fmt.Errorf("%w: step %d: unknown error name %q", ErrInvalid, i+1, s.Expect.Error)
			}
		}
	}
	for _, r := range f.Market.Royalties {
		if r.Bps > 10_000 {
			return fmt.Errorf("%w: royalty for %s is %d bps", ErrInvalid, r.Collection, r.Bps)
		}
	}
	return nil
}
