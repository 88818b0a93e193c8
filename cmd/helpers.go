package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/Mohsinsiddi/w3vault/internal/config"
	"github.com/Mohsinsiddi/w3vault/internal/secrets"
	"github.com/Mohsinsiddi/w3vault/internal/ui"
	"github.com/Mohsinsiddi/w3vault/internal/units"
)

// parseAmount accepts everything units.Amount does plus the configured
// token symbol as a suffix ("250 PFT").
func parseAmount(s, symbol string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	v, err := units.Amount(s, decimals)
	if err != nil && symbol != "" {
		if num, ok := strings.CutSuffix(strings.ToLower(s), strings.ToLower(symbol)); ok && num != "" {
			v, err = units.Amount(num+"tok", decimals)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", s, err)
	}
	return v, nil
}

// resolveAddress takes a hex address or an account name.
func resolveAddress(c *config.Config, s string) (common.Address, error) {
	if common.IsHexAddress(s) {
		return common.HexToAddress(s), nil
	}
	af, err := c.LoadAccounts()
	if err != nil {
		return common.Address{}, err
	}
	return af.Resolve(s)
}

// openRedis connects to the configured server and checks it answers. A
// password missing from the URL is looked up in the keychain.
func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis_url: %w", err)
	}
	if opts.Password == "" {
		pw, err := storedSecret(secrets.RedisPassword)
		if err != nil {
			return nil, err
		}
		opts.Password = pw
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, config.RedisDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}
	return client, nil
}

// storedSecret returns a secret from the keychain, or "" if none is stored.
func storedSecret(name string) (string, error) {
	store, err := secrets.Open(cfg.Dir())
	if err != nil {
		return "", err
	}
	v, err := store.Get(name)
	if errors.Is(err, secrets.ErrNotFound) {
		return "", nil
	}
	return v, err
}

func denomFor(symbol string, decimals uint8) ui.Denom {
	return ui.Denom{Decimals: decimals, Symbol: symbol}
}

// parseDate reads YYYY-MM-DD (or RFC 3339) as UTC. Empty means now.
func parseDate(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: use YYYY-MM-DD", s)
	}
	return t.UTC(), nil
}
