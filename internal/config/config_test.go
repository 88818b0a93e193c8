package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/w3vault/internal/config"
)

const (
	punks = "0xb47e3cd837dDF8e4c57F05d70Ab865de6e193BBB"
	apes  = "0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D"
	recv  = "0x00000000000000000000000000000000000000bb"
)

func TestLoadDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "w3vault:events", cfg.EventChannel)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 18, cfg.TokenDecimals)
	assert.Equal(t, uint16(400), cfg.Market.DefaultRoyaltyBps)
	assert.False(t, cfg.Vesting.PayVestedOnRevoke)
	assert.Equal(t, filepath.Join(dir, "index.db"), cfg.IndexPath())
}

func TestSaveAndReloadConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	require.NoError(t, cfg.Set("log_format", "json"))
	require.NoError(t, cfg.Set("vesting.pay_vested_on_revoke", "true"))
	require.NoError(t, cfg.Set("market.default_royalty_bps", "250"))
	require.NoError(t, cfg.SetRoyalty(punks, recv, 500))
	require.NoError(t, cfg.Save())

	_, err = os.Stat(filepath.Join(dir, "config.json"))
	require.NoError(t, err)

	reloaded, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "json", reloaded.LogFormat)
	assert.True(t, reloaded.Vesting.PayVestedOnRevoke)
	assert.Equal(t, uint16(250), reloaded.Market.DefaultRoyaltyBps)

	r, ok := reloaded.RoyaltyFor(punks)
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress(recv).Hex(), r.Receiver)
	assert.Equal(t, uint16(500), r.Bps)
	assert.Equal(t, dir, reloaded.Dir())
}

func TestSetRejectsBadValues(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	assert.ErrorIs(t, cfg.Set("rpc_algorithm", "fastest"), config.ErrUnknownKey)
	assert.ErrorIs(t, cfg.Set("market.default_royalty_bps", "10001"), config.ErrInvalidRoyalty)
	assert.ErrorIs(t, cfg.Set("market.default_royalty_receiver", "bob"), config.ErrInvalidAddress)
	assert.Error(t, cfg.Set("log_format", "xml"))
	assert.Error(t, cfg.Set("token_decimals", "-1"))
	assert.Error(t, cfg.Set("token_decimals", "37"))
	assert.Error(t, cfg.Set("vesting.pay_vested_on_revoke", "maybe"))

	_, err = cfg.Get("nope")
	assert.ErrorIs(t, err, config.ErrUnknownKey)
}

func TestGetCoversEveryKey(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	for _, k := range config.Keys() {
		_, err := cfg.Get(k)
		assert.NoError(t, err, k)
	}
	v, err := cfg.Get("market.default_royalty_bps")
	require.NoError(t, err)
	assert.Equal(t, "400", v)
}

func TestRoyaltyRules(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, cfg.SetRoyalty(punks, recv, 400))
	require.NoError(t, cfg.SetRoyalty(apes, recv, 750))
	// Same collection in another case replaces the rule.
	require.NoError(t, cfg.SetRoyalty("0xb47e3cd837ddf8e4c57f05d70ab865de6e193bbb", recv, 100))
	assert.Len(t, cfg.Market.Royalties, 2)
	r, _ := cfg.RoyaltyFor(punks)
	assert.Equal(t, uint16(100), r.Bps)

	assert.ErrorIs(t, cfg.SetRoyalty("punks", recv, 1), config.ErrInvalidAddress)
	assert.ErrorIs(t, cfg.SetRoyalty(punks, recv, 10_001), config.ErrInvalidRoyalty)

	require.NoError(t, cfg.RemoveRoyalty(apes))
	assert.ErrorIs(t, cfg.RemoveRoyalty(apes), config.ErrRoyaltyNotFound)
	_, ok := cfg.RoyaltyFor(apes)
	assert.False(t, ok)
}

func TestAccounts(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	af, err := cfg.LoadAccounts()
	require.NoError(t, err)
	assert.Empty(t, af.Accounts)

	require.NoError(t, af.Add("treasury", recv, "multisig"))
	assert.ErrorIs(t, af.Add("Treasury", recv, ""), config.ErrAccountExists)
	assert.ErrorIs(t, af.Add("bob", "0x12", ""), config.ErrInvalidAddress)
	require.NoError(t, cfg.SaveAccounts(af))

	reloaded, err := cfg.LoadAccounts()
	require.NoError(t, err)
	addr, err := reloaded.Resolve("treasury")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(recv), addr)

	addr, err = reloaded.Resolve(punks)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(punks), addr)

	_, err = reloaded.Resolve("ghost")
	assert.ErrorIs(t, err, config.ErrAccountNotFound)

	require.NoError(t, reloaded.Remove("TREASURY"))
	assert.ErrorIs(t, reloaded.Remove("treasury"), config.ErrAccountNotFound)
}

func TestLoadFromNonExistentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "subdir")
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	_, err = os.Stat(dir)
	assert.NoError(t, err)
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{"), 0o600))
	_, err := config.Load(dir)
	assert.Error(t, err)
}
