package ui

import (
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/Mohsinsiddi/w3vault/internal/indexer"
	"github.com/Mohsinsiddi/w3vault/internal/market"
	"github.com/Mohsinsiddi/w3vault/internal/vesting"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000B0B")
	vest  = Denom{Decimals: 18, Symbol: "VEST"}
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func TestDenomFormat(t *testing.T) {
	assert.Equal(t, "1.5 VEST", vest.Format(new(big.Int).Div(ether(3), big.NewInt(2))))
	assert.Equal(t, "12", Denom{Decimals: 2}.Format(big.NewInt(1200)))
	assert.Equal(t, "0.04 VEST", vest.FormatString("40000000000000000"))
	assert.Equal(t, "n/a", vest.FormatString("n/a"))
}

func sampleGrant() vesting.Grant {
	return vesting.Grant{
		Recipient:      alice,
		Amount:         ether(12),
		DurationMonths: 12,
		CliffMonths:    3,
		StartTime:      time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Claimed:        new(big.Int),
	}
}

func TestScheduleTableListsEveryMonth(t *testing.T) {
	g := sampleGrant()
	out := ScheduleTable(vesting.Schedule(g), vest, time.Time{})
	assert.Contains(t, out, "2024-01-15")
	assert.Contains(t, out, "2025-04-15")
	assert.Contains(t, out, "12 VEST")
	// header, divider and months 0..15
	assert.Equal(t, 18, strings.Count(out, "\n"))
}

func TestGrantBlock(t *testing.T) {
	g := sampleGrant()
	out := GrantBlock(g, ether(2), vest)
	assert.Contains(t, out, alice.Hex())
	assert.Contains(t, out, "1 VEST")
	assert.Contains(t, out, "2 VEST")
	assert.Contains(t, out, "active")

	g.Revoked = true
	g.RevokedAt = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.Contains(t, GrantBlock(g, new(big.Int), vest), "revoked 2024-06-01")
}

func TestSplitBlock(t *testing.T) {
	out := SplitBlock(market.SplitPrice(ether(100), bob, 400), vest)
	assert.Contains(t, out, "400 bps (4%)")
	assert.Contains(t, out, "96 VEST")
	assert.Contains(t, out, "4 VEST")
	assert.Contains(t, out, bob.Hex())

	out = SplitBlock(market.SplitPrice(ether(1), common.Address{}, 400), vest)
	assert.Contains(t, out, "none")
	assert.Contains(t, out, "0 bps")
}

func TestListingsTable(t *testing.T) {
	out := ListingsTable([]indexer.ListingRecord{
		{ID: "0xabc-1", Seller: alice.Hex(), Price: ether(5).String(), Status: indexer.StatusListed},
		{ID: "0xabc-2", Seller: alice.Hex(), Price: ether(7).String(), Status: indexer.StatusBought, Buyer: bob.Hex()},
	}, vest)
	assert.Contains(t, out, "0xabc-1")
	assert.Contains(t, out, "5 VEST")
	assert.Contains(t, out, "bought")
	assert.Contains(t, out, TruncateAddr(bob.Hex()))
}

func TestGrantsTable(t *testing.T) {
	out := GrantsTable([]indexer.GrantRecord{
		{Recipient: alice.Hex(), Amount: ether(12).String(), Claimed: ether(3).String(), MonthsClaimed: 3, CliffMonths: 3, DurationMonths: 12},
		{Recipient: bob.Hex(), Amount: ether(1).String(), Claimed: "0", Revoked: true, DurationMonths: 6},
	}, vest)
	assert.Contains(t, out, "12 VEST")
	assert.Contains(t, out, "3/12")
	assert.Contains(t, out, "revoked")
	assert.Contains(t, out, "active")
}
