package vesting_test

import (
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/w3vault/internal/auth"
	"github.com/Mohsinsiddi/w3vault/internal/clock"
	"github.com/Mohsinsiddi/w3vault/internal/events"
	"github.com/Mohsinsiddi/w3vault/internal/token"
	"github.com/Mohsinsiddi/w3vault/internal/vesting"
)

var (
	start    = time.Date(2023, time.January, 15, 9, 0, 0, 0, time.UTC)
	owner    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	treasury = common.HexToAddress("0x0000000000000000000000000000000000000002")
	vault    = common.HexToAddress("0x0000000000000000000000000000000000000003")
	claimer  = common.HexToAddress("0x0000000000000000000000000000000000000004")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000B0B")
	carol    = common.HexToAddress("0x00000000000000000000000000000000000CA201")
	mallory  = common.HexToAddress("0x000000000000000000000000000000000BADBAD0")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

type fixture struct {
	ledger *token.Ledger
	roles  *auth.Roles
	clk    *clock.Manual
	log    *events.Log
	eng    *vesting.Engine
}

func newFixture(t *testing.T, opts ...vesting.Option) *fixture {
	t.Helper()
	supply := ether(100_000_000)
	ledger := token.NewLedger("PFT")
	require.NoError(t, ledger.Mint(treasury, supply))
	require.NoError(t, ledger.Approve(treasury, vault, supply))

	roles := auth.NewRoles(owner)
	require.NoError(t, roles.SetClaimer(owner, claimer))

	clk := clock.NewManual(start)
	log := events.NewLog()
	return &fixture{
		ledger: ledger,
		roles:  roles,
		clk:    clk,
		log:    log,
		eng:    vesting.New(vault, treasury, roles, ledger, clk, events.NewBus(log), opts...),
	}
}

func (f *fixture) balance(a common.Address) string { return f.ledger.BalanceOf(a).String() }

func mulDiv(x *big.Int, num, den int64) *big.Int {
	out := new(big.Int).Mul(x, big.NewInt(num))
	return out.Quo(out, big.NewInt(den))
}

func TestAddTokenGrant(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.eng.AddTokenGrant(owner, alice, ether(1), 10, 2))

	g, ok := f.eng.Grant(alice)
	require.True(t, ok)
	assert.Equal(t, ether(1).String(), g.Amount.String())
	assert.Equal(t, uint64(10), g.DurationMonths)
	assert.Equal(t, uint64(2), g.CliffMonths)
	assert.True(t, g.StartTime.Equal(start))
	assert.Zero(t, g.MonthsClaimed)
	assert.False(t, g.Revoked)
	assert.Equal(t, ether(1).String(), f.balance(vault))
	assert.Equal(t, ether(99_999_999).String(), f.balance(treasury))

	envs := f.log.OfKind(events.KindGrantAdded)
	require.Len(t, envs, 1)
	ev := envs[0].Event.(events.GrantAdded)
	assert.Equal(t, alice, ev.Recipient)
	assert.Equal(t, uint64(10), ev.DurationMonths)
}

func TestAddTokenGrantRejections(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.eng.AddTokenGrant(owner, alice, ether(1), 10, 2))

	cases := []struct {
		name      string
		caller    common.Address
		recipient common.Address
		amount    *big.Int
		duration  uint64
		cliff     uint64
		want      error
	}{
		{"not owner", mallory, bob, ether(1), 10, 2, auth.ErrNotAuthorized},
		{"claimer is not owner", claimer, bob, ether(1), 10, 2, auth.ErrNotAuthorized},
		{"zero amount", owner, bob, big.NewInt(0), 10, 2, vesting.ErrInvalidAmount},
		{"cliff beyond duration", owner, bob, ether(1), 10, 11, vesting.ErrInvalidSchedule},
		{"zero duration", owner, bob, ether(1), 0, 0, vesting.ErrInvalidSchedule},
		{"active grant", owner, alice, ether(1), 10, 2, vesting.ErrDuplicateGrant},
		{"zero recipient", owner, common.Address{}, ether(1), 10, 2, vesting.ErrZeroRecipient},
		{"allowance exhausted", owner, bob, ether(200_000_000), 10, 2, token.ErrInsufficientAllowance},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := f.eng.AddTokenGrant(c.caller, c.recipient, c.amount, c.duration, c.cliff)
			assert.ErrorIs(t, err, c.want)
		})
	}

	_, ok := f.eng.Grant(bob)
	assert.False(t, ok)
	assert.Equal(t, ether(1).String(), f.balance(vault))
	assert.Equal(t, 1, f.log.Len())
}

func TestClaimOneEtherGrant(t *testing.T) {
	f := newFixture(t)
	amount := ether(1)
	require.NoError(t, f.eng.AddTokenGrant(owner, alice, amount, 10, 2))
	require.NoError(t, f.eng.AddTokenGrant(owner, bob, amount, 10, 2))

	f.clk.AdvanceMonths(2)
	_, err := f.eng.ClaimVestedTokensForRecipient(claimer, alice)
	assert.ErrorIs(t, err, vesting.ErrNothingVested)

	f.clk.AdvanceMonths(1)
	paid, err := f.eng.ClaimVestedTokensForRecipient(claimer, alice)
	require.NoError(t, err)
	assert.Equal(t, mulDiv(amount, 3-2, 10).String(), paid.String())
	assert.Equal(t, mulDiv(amount, 3-2, 10).String(), f.balance(alice))

	_, err = f.eng.ClaimVestedTokensForRecipient(claimer, alice)
	assert.ErrorIs(t, err, vesting.ErrNothingVested)

	f.clk.AdvanceMonths(4)
	paid, err = f.eng.ClaimVestedTokensForRecipient(claimer, bob)
	require.NoError(t, err)
	assert.Equal(t, mulDiv(amount, 7-2, 10).String(), paid.String())

	paid, err = f.eng.ClaimVestedTokensForRecipient(alice, alice)
	require.NoError(t, err)
	assert.Equal(t, mulDiv(amount, 4, 10).String(), paid.String())
	assert.Equal(t, f.balance(bob), f.balance(alice))
	assert.Equal(t, uint64(5), f.eng.GrantMonthsClaimed(alice))

	total := new(big.Int).Add(f.ledger.BalanceOf(alice), f.ledger.BalanceOf(bob))
	assert.Equal(t, total.String(), f.eng.TotalClaimedByAll().String())
}

func TestTeamSplitAcrossCliff(t *testing.T) {
	f := newFixture(t)
	total := ether(30_000_000)
	shares := map[common.Address]*big.Int{
		alice: mulDiv(total, 50, 100),
		bob:   mulDiv(total, 30, 100),
		carol: mulDiv(total, 20, 100),
	}
	for r, s := range shares {
		require.NoError(t, f.eng.AddTokenGrant(owner, r, s, 12, 6))
	}

	f.clk.AdvanceMonths(4)
	for r := range shares {
		_, err := f.eng.ClaimVestedTokensForRecipient(claimer, r)
		assert.ErrorIs(t, err, vesting.ErrNothingVested)
	}

	f.clk.AdvanceMonths(2)
	for r := range shares {
		_, err := f.eng.ClaimVestedTokensForRecipient(claimer, r)
		assert.ErrorIs(t, err, vesting.ErrNothingVested, "nothing vests at the cliff itself")
	}

	f.clk.AdvanceMonths(2)
	for r, s := range shares {
		paid, err := f.eng.ClaimVestedTokensForRecipient(claimer, r)
		require.NoError(t, err)
		assert.Equal(t, mulDiv(s, 8-6, 12).String(), paid.String())
	}

	f.clk.AdvanceMonths(24)
	for r, s := range shares {
		_, err := f.eng.ClaimVestedTokensForRecipient(claimer, r)
		require.NoError(t, err)
		assert.Equal(t, s.String(), f.balance(r))
		assert.Equal(t, uint64(12), f.eng.GrantMonthsClaimed(r))
	}
	assert.Equal(t, total.String(), f.eng.TotalClaimedByAll().String())
	assert.Zero(t, f.ledger.BalanceOf(vault).Sign())

	_, err := f.eng.ClaimVestedTokensForRecipient(claimer, alice)
	assert.ErrorIs(t, err, vesting.ErrNothingVested)
}

func TestFinalClaimSweepsTruncation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.eng.AddTokenGrant(owner, alice, big.NewInt(10), 3, 0))

	var got []string
	for i := 0; i < 3; i++ {
		f.clk.AdvanceMonths(1)
		paid, err := f.eng.ClaimVestedTokensForRecipient(alice, alice)
		require.NoError(t, err)
		got = append(got, paid.String())
	}
	assert.Equal(t, []string{"3", "3", "4"}, got)
	assert.Equal(t, "10", f.balance(alice))
}

func TestClaimAuthorization(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.eng.AddTokenGrant(owner, alice, ether(12), 12, 0))
	f.clk.AdvanceMonths(1)

	_, err := f.eng.ClaimVestedTokensForRecipient(mallory, alice)
	assert.ErrorIs(t, err, auth.ErrNotAuthorized)
	_, err = f.eng.ClaimVestedTokensForRecipient(bob, alice)
	assert.ErrorIs(t, err, auth.ErrNotAuthorized)
	_, err = f.eng.ClaimVestedTokensForRecipient(owner, alice)
	assert.ErrorIs(t, err, auth.ErrNotAuthorized)

	_, err = f.eng.ClaimVestedTokensForRecipient(bob, bob)
	assert.ErrorIs(t, err, vesting.ErrGrantNotFound)

	_, err = f.eng.ClaimVestedTokensForRecipient(alice, alice)
	assert.NoError(t, err)
}

func TestSetClaimer(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.eng.AddTokenGrant(owner, alice, ether(12), 12, 0))

	assert.ErrorIs(t, f.eng.SetClaimer(mallory, mallory), auth.ErrNotAuthorized)
	assert.Equal(t, claimer, f.eng.Claimer())

	require.NoError(t, f.eng.SetClaimer(owner, bob))
	assert.Equal(t, bob, f.eng.Claimer())

	f.clk.AdvanceMonths(2)
	_, err := f.eng.ClaimVestedTokensForRecipient(claimer, alice)
	assert.ErrorIs(t, err, auth.ErrNotAuthorized)
	_, err = f.eng.ClaimVestedTokensForRecipient(bob, alice)
	assert.NoError(t, err)

	changes := f.log.OfKind(events.KindClaimerChanged)
	require.Len(t, changes, 1)
	assert.Equal(t, events.ClaimerChanged{Previous: claimer, Claimer: bob}, changes[0].Event)
}

func TestRevokeReturnsUnclaimedRemainder(t *testing.T) {
	f := newFixture(t)
	amount := ether(17_000_000)
	require.NoError(t, f.eng.AddTokenGrant(owner, alice, amount, 18, 6))
	perMonth := mulDiv(amount, 1, 18)

	f.clk.AdvanceMonths(10)
	_, err := f.eng.ClaimVestedTokensForRecipient(claimer, alice)
	require.NoError(t, err)
	claimed := new(big.Int).Mul(perMonth, big.NewInt(10-6))
	assert.Equal(t, claimed.String(), f.balance(alice))

	f.clk.AdvanceMonths(10)
	assert.ErrorIs(t, f.eng.RevokeTokenGrant(claimer, alice), auth.ErrNotAuthorized)

	before := f.ledger.BalanceOf(treasury)
	require.NoError(t, f.eng.RevokeTokenGrant(owner, alice))

	gained := new(big.Int).Sub(f.ledger.BalanceOf(treasury), before)
	assert.Equal(t, new(big.Int).Sub(amount, claimed).String(), gained.String())
	assert.Equal(t, claimed.String(), f.balance(alice))
	assert.Zero(t, f.ledger.BalanceOf(vault).Sign())
	assert.Equal(t, uint64(4), f.eng.GrantMonthsClaimed(alice))

	g, _ := f.eng.Grant(alice)
	assert.True(t, g.Revoked)
	assert.True(t, g.RevokedAt.Equal(f.clk.Now()))
	assert.Zero(t, g.Remaining().Sign())

	_, err = f.eng.ClaimVestedTokensForRecipient(claimer, alice)
	assert.ErrorIs(t, err, vesting.ErrAlreadyRevoked)
	assert.ErrorIs(t, f.eng.RevokeTokenGrant(owner, alice), vesting.ErrAlreadyRevoked)
	assert.ErrorIs(t, f.eng.RevokeTokenGrant(owner, bob), vesting.ErrGrantNotFound)
	assert.Equal(t, claimed.String(), f.balance(alice))

	revoked := f.log.OfKind(events.KindGrantRevoked)
	require.Len(t, revoked, 1)
	ev := revoked[0].Event.(events.GrantRevoked)
	assert.Zero(t, ev.Vested.Sign())
	assert.Equal(t, gained.String(), ev.Returned.String())
}

func TestRevokeWithVestedPayout(t *testing.T) {
	f := newFixture(t, vesting.WithVestedPayoutOnRevoke(true))
	amount := ether(17_000_000)
	require.NoError(t, f.eng.AddTokenGrant(owner, alice, amount, 18, 6))
	perMonth := mulDiv(amount, 1, 18)

	f.clk.AdvanceMonths(10)
	_, err := f.eng.ClaimVestedTokensForRecipient(claimer, alice)
	require.NoError(t, err)

	f.clk.AdvanceMonths(10)
	before := f.ledger.BalanceOf(treasury)
	require.NoError(t, f.eng.RevokeTokenGrant(owner, alice))

	want := new(big.Int).Mul(perMonth, big.NewInt(20-6))
	assert.Equal(t, want.String(), f.balance(alice))
	gained := new(big.Int).Sub(f.ledger.BalanceOf(treasury), before)
	assert.Equal(t, new(big.Int).Sub(amount, want).String(), gained.String())
	assert.Equal(t, want.String(), f.eng.TotalClaimedByAll().String())
	assert.Equal(t, uint64(14), f.eng.GrantMonthsClaimed(alice))

	_, err = f.eng.ClaimVestedTokensForRecipient(claimer, alice)
	assert.ErrorIs(t, err, vesting.ErrAlreadyRevoked)
}

func TestRevokeBeforeAnyClaim(t *testing.T) {
	f := newFixture(t)
	amount := ether(17_000_000)
	require.NoError(t, f.eng.AddTokenGrant(owner, alice, amount, 18, 6))

	f.clk.AdvanceMonths(25)
	require.NoError(t, f.eng.RevokeTokenGrant(owner, alice))
	assert.Equal(t, ether(100_000_000).String(), f.balance(treasury))
	assert.Zero(t, f.ledger.BalanceOf(alice).Sign())

	_, err := f.eng.ClaimVestedTokensForRecipient(claimer, alice)
	assert.ErrorIs(t, err, vesting.ErrAlreadyRevoked)
}

func TestRevokedGrantCanBeReplaced(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.eng.AddTokenGrant(owner, alice, ether(10), 10, 0))
	require.NoError(t, f.eng.RevokeTokenGrant(owner, alice))

	f.clk.AdvanceMonths(3)
	require.NoError(t, f.eng.AddTokenGrant(owner, alice, ether(5), 5, 1))
	g, _ := f.eng.Grant(alice)
	assert.False(t, g.Revoked)
	assert.True(t, g.StartTime.Equal(f.clk.Now()))
	assert.Equal(t, ether(5).String(), g.Amount.String())
	assert.Len(t, f.eng.Grants(), 1)
}

func TestClaimable(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.eng.AddTokenGrant(owner, alice, big.NewInt(1200), 12, 3))

	c, err := f.eng.Claimable(alice)
	require.NoError(t, err)
	assert.Zero(t, c.Sign())

	f.clk.AdvanceMonths(5)
	c, err = f.eng.Claimable(alice)
	require.NoError(t, err)
	assert.Equal(t, "200", c.String())

	_, err = f.eng.Claimable(bob)
	assert.ErrorIs(t, err, vesting.ErrGrantNotFound)
}

func TestConcurrentClaimsPayOnce(t *testing.T) {
	f := newFixture(t)
	recipients := []common.Address{alice, bob, carol}
	for _, r := range recipients {
		require.NoError(t, f.eng.AddTokenGrant(owner, r, big.NewInt(1200), 12, 0))
	}
	f.clk.AdvanceMonths(6)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins = map[common.Address]int{}
	)
	for i := 0; i < 30; i++ {
		r := recipients[i%len(recipients)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.eng.ClaimVestedTokensForRecipient(claimer, r); err == nil {
				mu.Lock()
				wins[r]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for _, r := range recipients {
		assert.Equal(t, 1, wins[r])
		assert.Equal(t, "600", f.balance(r))
	}
	assert.Equal(t, "1800", f.eng.TotalClaimedByAll().String())
	assert.Len(t, f.log.OfKind(events.KindTokensClaimed), 3)
}

func TestEventsFollowOperations(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.eng.AddTokenGrant(owner, alice, big.NewInt(100), 10, 0))
	f.clk.AdvanceMonths(2)
	_, err := f.eng.ClaimVestedTokensForRecipient(alice, alice)
	require.NoError(t, err)
	require.NoError(t, f.eng.RevokeTokenGrant(owner, alice))

	var kinds []events.Kind
	for _, env := range f.log.All() {
		kinds = append(kinds, env.Kind())
	}
	assert.Equal(t, []events.Kind{events.KindGrantAdded, events.KindTokensClaimed, events.KindGrantRevoked}, kinds)

	claimed := f.log.OfKind(events.KindTokensClaimed)[0].Event.(events.TokensClaimed)
	assert.Equal(t, "20", claimed.Amount.String())
	assert.Equal(t, uint64(2), claimed.MonthsClaimed)
}
