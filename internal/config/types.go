package config

// Config holds all w3vault configuration.
type Config struct {
	LogLevel      string        `json:"log_level"`
	LogFormat     string        `json:"log_format"` // "text" | "json"
	DBPath        string        `json:"db_path,omitempty"`
	RedisURL      string        `json:"redis_url"`
	EventChannel  string        `json:"event_channel"`
	ListenAddr    string        `json:"listen_addr"`
	TokenSymbol   string        `json:"token_symbol"`
	TokenDecimals int           `json:"token_decimals"`
	Vesting       VestingConfig `json:"vesting"`
	Market        MarketConfig  `json:"market"`

	// internal: config dir path used for Save()
	configDir string
}

// VestingConfig tunes the vault.
type VestingConfig struct {
	// PayVestedOnRevoke settles vested but unclaimed months to the
	// recipient before returning the rest to the treasury.
	PayVestedOnRevoke bool `json:"pay_vested_on_revoke"`
}

// MarketConfig tunes the marketplace.
type MarketConfig struct {
	DefaultRoyaltyBps      uint16    `json:"default_royalty_bps"`
	DefaultRoyaltyReceiver string    `json:"default_royalty_receiver,omitempty"`
	Royalties              []Royalty `json:"royalties"`
}

// Royalty is one collection's royalty terms.
type Royalty struct {
	Collection string `json:"collection"`
	Receiver   string `json:"receiver"`
	Bps        uint16 `json:"bps"`
}

// Account is a named address in the address book.
type Account struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at"`
}

// AccountsFile is the structure of accounts.json.
type AccountsFile struct {
	Accounts []Account `json:"accounts"`
}
