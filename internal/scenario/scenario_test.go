package scenario_test

import (
	"context"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/w3vault/internal/events"
	"github.com/Mohsinsiddi/w3vault/internal/scenario"
)

func run(t *testing.T, path string, opts ...scenario.Option) *scenario.Report {
	t.Helper()
	f, err := scenario.Load(path)
	require.NoError(t, err)
	rep, err := scenario.Run(context.Background(), f, opts...)
	require.NoError(t, err)
	require.False(t, rep.Failed())
	return rep
}

func TestTeamScenarioReport(t *testing.T) {
	rep := run(t, "testdata/team.yaml")

	g := goldie.New(t)
	g.Assert(t, "team", []byte(rep.String()))
}

func TestTeamScenarioTotals(t *testing.T) {
	rep := run(t, "testdata/team.yaml")
	assert.Equal(t, "30000000000000000000000000", rep.TotalClaimed.String())
	require.Len(t, rep.Grants, 3)
	for _, g := range rep.Grants {
		assert.Equal(t, g.Amount.String(), g.Claimed.String(), g.Recipient)
	}
	assert.Empty(t, rep.Listings)
}

func TestRevokeScenario(t *testing.T) {
	rep := run(t, "testdata/revoke.yaml")
	require.Len(t, rep.Steps, 11)
	assert.Equal(t, "paid 30 VEST, returned 90 VEST", rep.Steps[3].Result)
	assert.Equal(t, "rejected: already_revoked", rep.Steps[4].Result)
	assert.Equal(t, "force cancelled", rep.Steps[9].Result)
	assert.Equal(t, "30000000000000000000", rep.TotalClaimed.String())
	assert.Contains(t, rep.String(), "total claimed: 30 VEST")
}

func TestExtraSinkSeesEveryEvent(t *testing.T) {
	log := events.NewLog()
	rep := run(t, "testdata/revoke.yaml", scenario.WithSink(log))
	assert.Equal(t, len(rep.Envelopes), log.Len())
	require.NotZero(t, log.Len())
	for i, env := range log.All() {
		assert.Equal(t, uint64(i+1), env.Seq)
		assert.NotEmpty(t, env.ID)
	}
}

const failing = `
name: wrong expectation
accounts: [owner, treasury, zed]
mint: {treasury: 10tok}
steps:
  - action: add_grant
    as: owner
    args: {recipient: zed, amount: 10tok, duration: "10", cliff: "2"}
  - action: advance
    args: {months: "3"}
  - action: claim
    as: zed
    expect: {amount: 2tok}
  - action: claim
    as: zed
`

func TestRunStopsAtFailedExpectation(t *testing.T) {
	f, err := scenario.Parse(strings.NewReader(failing))
	require.NoError(t, err)

	rep, err := scenario.Run(context.Background(), f)
	require.ErrorIs(t, err, scenario.ErrExpectation)
	assert.Contains(t, err.Error(), "step 3 (claim)")
	require.NotNil(t, rep)
	require.Len(t, rep.Steps, 3)
	assert.True(t, rep.Failed())
	assert.Contains(t, rep.Steps[2].Result, "FAIL: expectation failed: amount is 1 VEST, wanted 2 VEST")
	assert.Contains(t, rep.String(), "FAIL")
}

func TestRunUnexpectedEngineError(t *testing.T) {
	f, err := scenario.Parse(strings.NewReader(`
accounts: [owner, treasury, zed]
steps:
  - action: add_grant
    as: owner
    args: {recipient: zed, amount: 10tok, duration: "10", cliff: "2"}
`))
	require.NoError(t, err)
	_, err = scenario.Run(context.Background(), f)
	assert.ErrorContains(t, err, "insufficient allowance")
}

func TestRunHonoursContext(t *testing.T) {
	f, err := scenario.Parse(strings.NewReader(failing))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := scenario.Run(ctx, f)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rep.Steps)
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"unknown field":  "steps: [{action: claim, as: a}]\nbogus: 1\n",
		"unknown action": "steps: [{action: teleport}]\n",
		"unknown error":  "steps: [{action: claim, as: a, expect: {error: on_fire}}]\n",
		"no steps":       "name: empty\n",
		"royalty":        "market: {royalties: [{collection: c, receiver: r, bps: 10001}]}\nsteps: [{action: claim, as: a}]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := scenario.Parse(strings.NewReader(doc))
			assert.ErrorIs(t, err, scenario.ErrInvalid)
		})
	}
}

func TestUnknownAccountIsInvalid(t *testing.T) {
	f, err := scenario.Parse(strings.NewReader(`
accounts: [owner, treasury]
steps:
  - action: claim
    as: nobody
`))
	require.NoError(t, err)
	rep, err := scenario.Run(context.Background(), f)
	assert.ErrorIs(t, err, scenario.ErrInvalid)
	assert.True(t, rep.Failed())
}

func TestDeriveAddressIsStable(t *testing.T) {
	a := scenario.DeriveAddress("alice")
	assert.Equal(t, a, scenario.DeriveAddress("alice"))
	assert.NotEqual(t, a, scenario.DeriveAddress("bob"))
}

func TestPinnedAddress(t *testing.T) {
	f, err := scenario.Parse(strings.NewReader(`
accounts: [owner, treasury, alice]
addresses: {alice: "0x00000000000000000000000000000000000A11CE"}
mint: {alice: 5tok}
steps:
  - action: assert
    balances: {alice: 5tok}
`))
	require.NoError(t, err)
	rep, err := scenario.Run(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, "1 checks passed", rep.Steps[0].Result)
}

func TestPinnedEngineAddresses(t *testing.T) {
	f, err := scenario.Parse(strings.NewReader(`
accounts: [owner, treasury, alice]
addresses: {vault: "0x0000000000000000000000000000000000007A17"}
mint: {treasury: 100tok}
steps:
  - action: add_grant
    as: owner
    args: {recipient: alice, amount: 100tok, duration: "10", cliff: "0"}
  - action: assert
    balances: {vault: 100tok, treasury: 0tok}
`))
	require.NoError(t, err)
	rep, err := scenario.Run(context.Background(), f)
	require.NoError(t, err)
	assert.False(t, rep.Failed())
}
