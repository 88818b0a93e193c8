package vesting

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mohsinsiddi/w3vault/internal/clock"
)

// Grant is one recipient's vesting allocation.
type Grant struct {
	Recipient      common.Address
	Amount         *big.Int
	DurationMonths uint64
	CliffMonths    uint64
	StartTime      time.Time
	MonthsClaimed  uint64
	// Claimed is everything paid to the recipient so far.
	Claimed   *big.Int
	Revoked   bool
	RevokedAt time.Time
}

func (g *Grant) clone() Grant {
	out := *g
	out.Amount = new(big.Int).Set(g.Amount)
	out.Claimed = new(big.Int).Set(g.Claimed)
	return out
}

// Remaining returns what the grant still holds in custody.
func (g Grant) Remaining() *big.Int {
	if g.Revoked {
		return new(big.Int)
	}
	return new(big.Int).Sub(g.Amount, g.Claimed)
}

// PerMonth is the monthly release unit, truncated.
func (g Grant) PerMonth() *big.Int {
	if g.DurationMonths == 0 {
		return new(big.Int)
	}
	return new(big.Int).Quo(g.Amount, new(big.Int).SetUint64(g.DurationMonths))
}

// ValidateTerms checks the parameters of a new grant.
func ValidateTerms(amount *big.Int, durationMonths, cliffMonths uint64) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if durationMonths == 0 {
		return fmt.Errorf("%w: duration must be at least one month", ErrInvalidSchedule)
	}
	if cliffMonths > durationMonths {
		return fmt.Errorf("%w: cliff of %d months exceeds duration of %d", ErrInvalidSchedule, cliffMonths, durationMonths)
	}
	return nil
}

// VestedMonths returns how many monthly units of g have vested at asOf.
// Nothing vests until more than CliffMonths whole months have elapsed; each
// month after the cliff releases one unit, up to DurationMonths.
func VestedMonths(g Grant, asOf time.Time) uint64 {
	elapsed := clock.MonthsBetween(g.StartTime, asOf)
	if elapsed <= g.CliffMonths {
		return 0
	}
	return min(elapsed-g.CliffMonths, g.DurationMonths)
}

// ReleasedAt is the cumulative amount released after months vested units.
// A fully vested grant releases its whole amount, so the truncation left by
// PerMonth is paid with the last unit.
func ReleasedAt(g Grant, months uint64) *big.Int {
	if months >= g.DurationMonths {
		return new(big.Int).Set(g.Amount)
	}
	return new(big.Int).Mul(g.PerMonth(), new(big.Int).SetUint64(months))
}

// ScheduleEntry is one row of a release table.
type ScheduleEntry struct {
	Month        uint64
	Date         time.Time
	VestedMonths uint64
	Released     *big.Int
}

// Schedule lists the cumulative release at every month boundary from the
// grant start until the grant is fully vested.
func Schedule(g Grant) []ScheduleEntry {
	last := g.CliffMonths + g.DurationMonths
	out := make([]ScheduleEntry, 0, last+1)
	for m := uint64(0); m <= last; m++ {
		vested := uint64(0)
		if m > g.CliffMonths {
			vested = min(m-g.CliffMonths, g.DurationMonths)
		}
		out = append(out, ScheduleEntry{
			Month:        m,
			Date:         clock.AddMonths(g.StartTime, int(m)),
			VestedMonths: vested,
			Released:     ReleasedAt(g, vested),
		})
	}
	return out
}
