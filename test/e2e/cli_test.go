package e2e_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/w3vault/test/fixtures"
)

var binaryPath string

func TestMain(m *testing.M) {
	// Build the binary before all E2E tests.
	tmp, err := os.MkdirTemp("", "w3vault-e2e-test")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmp)

	binaryPath = filepath.Join(tmp, "w3vault")
	// Build from the module root (two levels up from test/e2e/).
	moduleRoot, err := filepath.Abs(filepath.Join("..", ".."))
	if err != nil {
		panic(err)
	}
	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	cmd.Dir = moduleRoot
	if out, err := cmd.CombinedOutput(); err != nil {
		panic("build failed: " + string(out))
	}

	os.Exit(m.Run())
}

func runCLI(t *testing.T, configDir string, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(binaryPath, args...)
	cmd.Env = append(os.Environ(), "W3VAULT_CONFIG_DIR="+configDir)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func TestVersionFlag(t *testing.T) {
	dir := t.TempDir()
	out, err := runCLI(t, dir, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "w3vault")
	assert.Contains(t, out, "0.3.0")
}

func TestHelpCommand(t *testing.T) {
	dir := t.TempDir()
	out, err := runCLI(t, dir, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "w3vault")
	for _, sub := range []string{"schedule", "royalty", "simulate", "index", "serve", "watch", "listings", "grants"} {
		assert.Contains(t, strings.ToLower(out), sub)
	}
	assert.Contains(t, out, "--config")
}

func TestConfigList(t *testing.T) {
	dir := t.TempDir()
	out, err := runCLI(t, dir, "config", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "redis_url")
	assert.Contains(t, out, "default_royalty_bps")
	assert.Contains(t, out, dir)
}

func TestConfigSetPersists(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, dir, "config", "set", "market.default_royalty_bps", "250")
	require.NoError(t, err)

	out, err := runCLI(t, dir, "config", "get", "market.default_royalty_bps")
	require.NoError(t, err)
	assert.Equal(t, "250", strings.TrimSpace(out))

	_, err = runCLI(t, dir, "config", "set", "market.default_royalty_bps", "10001")
	assert.Error(t, err)
}

func TestAccountAddAndList(t *testing.T) {
	dir := t.TempDir()

	_, err := runCLI(t, dir, "account", "add", "artist", "0x1234567890abcdef1234567890abcdef12345678", "--note", "royalties")
	require.NoError(t, err)

	out, err := runCLI(t, dir, "account", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "artist")
	assert.Contains(t, out, "royalties")
}

func TestAccountRemove(t *testing.T) {
	dir := t.TempDir()

	runCLI(t, dir, "account", "add", "a1", "0x1234567890abcdef1234567890abcdef12345678") //nolint:errcheck

	// Use stdin to auto-confirm the prompt.
	cmd := exec.Command(binaryPath, "account", "remove", "a1")
	cmd.Env = append(os.Environ(), "W3VAULT_CONFIG_DIR="+dir)
	cmd.Stdin = strings.NewReader("y\n")
	cmd.Run() //nolint:errcheck

	out, err := runCLI(t, dir, "account", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "a1")
}

func TestScheduleUsesConfiguredToken(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, dir, "config", "set", "token_symbol", "TEAM")
	require.NoError(t, err)

	out, err := runCLI(t, dir, "schedule", "--amount", "48TEAM", "--duration", "4", "--cliff", "1",
		"--start", "2024-01-01", "--as-of", "2024-04-15")
	require.NoError(t, err)
	assert.Contains(t, out, "Vested as of 2024-04-15: 24 TEAM")
}

func TestRoyaltyUsesDefaultTerms(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, dir, "config", "set", "market.default_royalty_receiver", "0x1234567890abcdef1234567890abcdef12345678")
	require.NoError(t, err)

	// Default 400 bps of 1 ETH.
	out, err := runCLI(t, dir, "royalty", "1eth")
	require.NoError(t, err)
	assert.Contains(t, out, "0.04")
	assert.Contains(t, out, "0.96")
}

func TestSimulateFixtures(t *testing.T) {
	for _, name := range fixtures.Scenarios(t) {
		t.Run(name, func(t *testing.T) {
			out, err := runCLI(t, t.TempDir(), "simulate", fixtures.ScenarioPath(name))
			require.NoError(t, err, out)
			assert.Contains(t, out, "step(s) passed")
			assert.Contains(t, out, "events:")
		})
	}
}

func TestSimulateReportsFailedStep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`name: broken
accounts: [owner, treasury, alice]
steps:
  - action: claim
    as: alice
    expect: {amount: 1tok}
`), 0o600))

	out, err := runCLI(t, t.TempDir(), "simulate", path)
	assert.Error(t, err)
	assert.Contains(t, out, "step 1 (claim)")
}

func TestTopicsList(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "topics")
	require.NoError(t, err)
	assert.Contains(t, out, "ItemListed(address,address,uint256,uint256)")
}
