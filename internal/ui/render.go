package ui

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mohsinsiddi/w3vault/internal/indexer"
	"github.com/Mohsinsiddi/w3vault/internal/market"
	"github.com/Mohsinsiddi/w3vault/internal/units"
	"github.com/Mohsinsiddi/w3vault/internal/vesting"
)

// Denom formats base-unit amounts for a token.
type Denom struct {
	Decimals uint8
	Symbol   string
}

// Format renders v in whole tokens followed by the symbol.
func (d Denom) Format(v *big.Int) string {
	s := units.FormatUnits(v, d.Decimals)
	if d.Symbol == "" {
		return s
	}
	return s + " " + d.Symbol
}

// FormatString is Format for amounts already held as decimal strings.
// Unparseable input is returned unchanged.
func (d Denom) FormatString(s string) string {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return s
	}
	return d.Format(v)
}

const dateLayout = "2006-01-02"

// ScheduleTable renders a grant's release table. The row for asOf's month
// is highlighted.
func ScheduleTable(entries []vesting.ScheduleEntry, d Denom, asOf time.Time) string {
	t := NewTable([]Column{
		{Title: "MONTH", Width: 6, Right: true},
		{Title: "DATE", Width: 10},
		{Title: "VESTED", Width: 7, Right: true},
		{Title: "RELEASED", Width: 28, Right: true},
	})
	for i, e := range entries {
		t.AddRow(Row{
			strconv.FormatUint(e.Month, 10),
			e.Date.Format(dateLayout),
			strconv.FormatUint(e.VestedMonths, 10),
			d.Format(e.Released),
		})
		if !asOf.IsZero() && !e.Date.After(asOf) {
			t.SelIdx = i
		}
	}
	return t.Render()
}

// GrantBlock renders a single grant with its claimable balance.
func GrantBlock(g vesting.Grant, claimable *big.Int, d Denom) string {
	status := StyleSuccess.Render("active")
	if g.Revoked {
		status = StyleWarning.Render("revoked " + g.RevokedAt.Format(dateLayout))
	}
	return KeyValueBlock("Grant · "+TruncateAddr(g.Recipient.Hex()), [][2]string{
		{"Recipient", Addr(g.Recipient.Hex())},
		{"Amount", d.Format(g.Amount)},
		{"Per month", d.Format(g.PerMonth())},
		{"Start", g.StartTime.Format(dateLayout)},
		{"Cliff", fmt.Sprintf("%d months", g.CliffMonths)},
		{"Duration", fmt.Sprintf("%d months", g.DurationMonths)},
		{"Months claimed", strconv.FormatUint(g.MonthsClaimed, 10)},
		{"Claimed", d.Format(g.Claimed)},
		{"Claimable", d.Format(claimable)},
		{"Status", status},
	})
}

// SplitBlock renders how a sale price divides between seller and royalty.
func SplitBlock(s market.Split, d Denom) string {
	receiver := Meta("none")
	if s.Receiver != (common.Address{}) {
		receiver = Addr(s.Receiver.Hex())
	}
	return KeyValueBlock("Sale Split", [][2]string{
		{"Price", d.Format(s.Price)},
		{"Royalty rate", fmt.Sprintf("%d bps (%s%%)", s.Bps, units.FormatUnits(big.NewInt(int64(s.Bps)), 2))},
		{"Royalty", d.Format(s.Royalty)},
		{"Receiver", receiver},
		{"Seller proceeds", d.Format(s.Proceeds)},
	})
}

// ListingsTable renders indexed listings.
func ListingsTable(records []indexer.ListingRecord, d Denom) string {
	t := NewTable([]Column{
		{Title: "ID", Width: 24},
		{Title: "SELLER", Width: 13},
		{Title: "PRICE", Width: 22, Right: true},
		{Title: "STATUS", Width: 9},
		{Title: "BUYER", Width: 13},
	})
	for _, r := range records {
		t.AddRow(Row{
			r.ID,
			TruncateAddr(r.Seller),
			d.FormatString(r.Price),
			r.Status.String(),
			TruncateAddr(r.Buyer),
		})
	}
	return t.Render()
}

// GrantsTable renders indexed grants.
func GrantsTable(records []indexer.GrantRecord, d Denom) string {
	t := NewTable([]Column{
		{Title: "RECIPIENT", Width: 13},
		{Title: "AMOUNT", Width: 22, Right: true},
		{Title: "CLAIMED", Width: 22, Right: true},
		{Title: "MONTHS", Width: 6, Right: true},
		{Title: "TERMS", Width: 9},
		{Title: "STATUS", Width: 8},
	})
	for _, r := range records {
		status := "active"
		if r.Revoked {
			status = "revoked"
		}
		t.AddRow(Row{
			TruncateAddr(r.Recipient),
			d.FormatString(r.Amount),
			d.FormatString(r.Claimed),
			strconv.FormatUint(r.MonthsClaimed, 10),
			fmt.Sprintf("%d/%d", r.CliffMonths, r.DurationMonths),
			status,
		})
	}
	return t.Render()
}
