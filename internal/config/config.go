package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mohsinsiddi/w3vault/internal/units"
)

const (
	defaultLogLevel      = "info"
	defaultLogFormat     = "text"
	defaultRedisURL      = "redis://localhost:6379/0"
	defaultEventChannel  = "w3vault:events"
	defaultListenAddr    = ":8080"
	defaultTokenSymbol   = "PFT"
	defaultTokenDecimals = 18
	defaultRoyaltyBps    = 400

	configFile   = "config.json"
	accountsFile = "accounts.json"
	indexFile    = "index.db"
)

var (
	ErrUnknownKey      = errors.New("unknown config key")
	ErrInvalidAddress  = errors.New("invalid address")
	ErrInvalidRoyalty  = errors.New("royalty above 10000 bps")
	ErrRoyaltyNotFound = errors.New("no royalty for collection")
	ErrAccountExists   = errors.New("account already exists")
	ErrAccountNotFound = errors.New("account not found")
)

// Load reads config from dir (or creates defaults). dir defaults to ~/.w3vault.
func Load(dir string) (*Config, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not determine home dir: %w", err)
		}
		dir = filepath.Join(home, ".w3vault")
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("could not create config dir: %w", err)
	}

	cfg := defaults(dir)

	path := filepath.Join(dir, configFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.configDir = dir
	if cfg.Market.Royalties == nil {
		cfg.Market.Royalties = []Royalty{}
	}

	return cfg, nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.configDir, 0o700); err != nil {
		return err
	}
	return saveJSON(filepath.Join(c.configDir, configFile), c)
}

// Dir returns the config directory.
func (c *Config) Dir() string {
	return c.configDir
}

// IndexPath returns the SQLite index location.
func (c *Config) IndexPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.configDir, indexFile)
}

// Keys lists the scalar keys accepted by Get and Set.
func Keys() []string {
	return []string{
		"log_level", "log_format", "db_path", "redis_url", "event_channel", "listen_addr",
		"token_symbol", "token_decimals",
		"vesting.pay_vested_on_revoke",
		"market.default_royalty_bps", "market.default_royalty_receiver",
	}
}

// Get returns a scalar value as text.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "log_level":
		return c.LogLevel, nil
	case "log_format":
		return c.LogFormat, nil
	case "db_path":
		return c.IndexPath(), nil
	case "redis_url":
		return c.RedisURL, nil
	case "event_channel":
		return c.EventChannel, nil
	case "listen_addr":
		return c.ListenAddr, nil
	case "token_symbol":
		return c.TokenSymbol, nil
	case "token_decimals":
		return strconv.Itoa(c.TokenDecimals), nil
	case "vesting.pay_vested_on_revoke":
		return strconv.FormatBool(c.Vesting.PayVestedOnRevoke), nil
	case "market.default_royalty_bps":
		return strconv.Itoa(int(c.Market.DefaultRoyaltyBps)), nil
	case "market.default_royalty_receiver":
		return c.Market.DefaultRoyaltyReceiver, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
}

// Set parses and stores a scalar value.
func (c *Config) Set(key, value string) error {
	switch key {
	case "log_level":
		c.LogLevel = value
	case "log_format":
		if value != "text" && value != "json" {
			return fmt.Errorf("log_format must be text or json, got %q", value)
		}
		c.LogFormat = value
	case "db_path":
		c.DBPath = value
	case "redis_url":
		c.RedisURL = value
	case "event_channel":
		c.EventChannel = value
	case "listen_addr":
		c.ListenAddr = value
	case "token_symbol":
		c.TokenSymbol = value
	case "token_decimals":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 || n > units.MaxDecimals {
			return fmt.Errorf("token_decimals must be between 0 and %d, got %q", units.MaxDecimals, value)
		}
		c.TokenDecimals = n
	case "vesting.pay_vested_on_revoke":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("vesting.pay_vested_on_revoke: %w", err)
		}
		c.Vesting.PayVestedOnRevoke = b
	case "market.default_royalty_bps":
		bps, err := parseBps(value)
		if err != nil {
			return err
		}
		c.Market.DefaultRoyaltyBps = bps
	case "market.default_royalty_receiver":
		if value != "" && !common.IsHexAddress(value) {
			return fmt.Errorf("%w: %s", ErrInvalidAddress, value)
		}
		c.Market.DefaultRoyaltyReceiver = checksum(value)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return nil
}

// SetRoyalty adds or replaces the royalty for collection.
func (c *Config) SetRoyalty(collection, receiver string, bps uint16) error {
	for _, a := range []string{collection, receiver} {
		if !common.IsHexAddress(a) {
			return fmt.Errorf("%w: %s", ErrInvalidAddress, a)
		}
	}
	if bps > MaxRoyaltyBps {
		return fmt.Errorf("%w: %d", ErrInvalidRoyalty, bps)
	}
	r := Royalty{Collection: checksum(collection), Receiver: checksum(receiver), Bps: bps}
	if i := c.royaltyIndex(collection); i >= 0 {
		c.Market.Royalties[i] = r
		return nil
	}
	c.Market.Royalties = append(c.Market.Royalties, r)
	return nil
}

// RemoveRoyalty drops collection's royalty.
func (c *Config) RemoveRoyalty(collection string) error {
	i := c.royaltyIndex(collection)
	if i == -1 {
		return fmt.Errorf("%w: %s", ErrRoyaltyNotFound, collection)
	}
	c.Market.Royalties = slices.Delete(c.Market.Royalties, i, i+1)
	return nil
}

// RoyaltyFor returns collection's royalty terms.
func (c *Config) RoyaltyFor(collection string) (Royalty, bool) {
	i := c.royaltyIndex(collection)
	if i == -1 {
		return Royalty{}, false
	}
	return c.Market.Royalties[i], true
}

func (c *Config) royaltyIndex(collection string) int {
	return slices.IndexFunc(c.Market.Royalties, func(r Royalty) bool {
		return strings.EqualFold(r.Collection, collection)
	})
}

// LoadAccounts reads accounts.json.
func (c *Config) LoadAccounts() (*AccountsFile, error) {
	return loadJSON[AccountsFile](filepath.Join(c.configDir, accountsFile))
}

// SaveAccounts writes accounts.json.
func (c *Config) SaveAccounts(af *AccountsFile) error {
	return saveJSON(filepath.Join(c.configDir, accountsFile), af)
}

// Add appends a named account.
func (af *AccountsFile) Add(name, address, note string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}
	if _, ok := af.Find(name); ok {
		return fmt.Errorf("%w: %s", ErrAccountExists, name)
	}
	af.Accounts = append(af.Accounts, Account{
		Name:      name,
		Address:   checksum(address),
		Note:      note,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	return nil
}

// Remove deletes a named account.
func (af *AccountsFile) Remove(name string) error {
	i := slices.IndexFunc(af.Accounts, func(a Account) bool { return strings.EqualFold(a.Name, name) })
	if i == -1 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, name)
	}
	af.Accounts = slices.Delete(af.Accounts, i, i+1)
	return nil
}

// Find looks an account up by name, ignoring case.
func (af *AccountsFile) Find(name string) (Account, bool) {
	i := slices.IndexFunc(af.Accounts, func(a Account) bool { return strings.EqualFold(a.Name, name) })
	if i == -1 {
		return Account{}, false
	}
	return af.Accounts[i], true
}

// Resolve turns an account name or a hex address into an address.
func (af *AccountsFile) Resolve(nameOrAddress string) (common.Address, error) {
	if common.IsHexAddress(nameOrAddress) {
		return common.HexToAddress(nameOrAddress), nil
	}
	if a, ok := af.Find(nameOrAddress); ok {
		return common.HexToAddress(a.Address), nil
	}
	return common.Address{}, fmt.Errorf("%w: %s", ErrAccountNotFound, nameOrAddress)
}

// --- helpers ---

func defaults(dir string) *Config {
	return &Config{
		LogLevel:      defaultLogLevel,
		LogFormat:     defaultLogFormat,
		RedisURL:      defaultRedisURL,
		EventChannel:  defaultEventChannel,
		ListenAddr:    defaultListenAddr,
		TokenSymbol:   defaultTokenSymbol,
		TokenDecimals: defaultTokenDecimals,
		Market: MarketConfig{
			DefaultRoyaltyBps: defaultRoyaltyBps,
			Royalties:         []Royalty{},
		},
		configDir: dir,
	}
}

func parseBps(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("royalty bps %q: %w", s, err)
	}
	if n > MaxRoyaltyBps {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRoyalty, n)
	}
	return uint16(n), nil
}

func checksum(addr string) string {
	if addr == "" {
		return ""
	}
	return common.HexToAddress(addr).Hex()
}

func loadJSON[T any](path string) (*T, error) {
	var zero T
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &zero, nil
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
