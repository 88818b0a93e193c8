package vesting_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/w3vault/internal/clock"
	"github.com/Mohsinsiddi/w3vault/internal/vesting"
)

func TestVestedMonths(t *testing.T) {
	g := vesting.Grant{Amount: big.NewInt(1000), DurationMonths: 10, CliffMonths: 2, StartTime: start}
	cases := []struct {
		elapsed int
		want    uint64
	}{
		{0, 0}, {1, 0}, {2, 0}, {3, 1}, {7, 5}, {12, 10}, {13, 10}, {40, 10},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, vesting.VestedMonths(g, clock.AddMonths(start, c.elapsed)), "elapsed %d", c.elapsed)
	}

	// One day short of the third month still counts two.
	almost := clock.AddMonths(start, 3).Add(-24 * time.Hour)
	assert.Zero(t, vesting.VestedMonths(g, almost))
	// Before the grant started.
	assert.Zero(t, vesting.VestedMonths(g, start.Add(-time.Hour)))
}

func TestVestedMonthsIsMonotoneAndBounded(t *testing.T) {
	for _, terms := range [][2]uint64{{12, 6}, {10, 2}, {1, 0}, {18, 18}} {
		g := vesting.Grant{Amount: big.NewInt(1), DurationMonths: terms[0], CliffMonths: terms[1], StartTime: start}
		var prev uint64
		for day := 0; day < 365*4; day += 3 {
			at := start.AddDate(0, 0, day)
			v := vesting.VestedMonths(g, at)
			require.GreaterOrEqual(t, v, prev)
			require.LessOrEqual(t, v, g.DurationMonths)
			if clock.MonthsBetween(start, at) <= g.CliffMonths {
				require.Zero(t, v)
			}
			prev = v
		}
		assert.Equal(t, g.DurationMonths, prev)
	}
}

func TestValidateTerms(t *testing.T) {
	assert.NoError(t, vesting.ValidateTerms(big.NewInt(1), 1, 1))
	assert.ErrorIs(t, vesting.ValidateTerms(big.NewInt(0), 10, 2), vesting.ErrInvalidAmount)
	assert.ErrorIs(t, vesting.ValidateTerms(big.NewInt(-5), 10, 2), vesting.ErrInvalidAmount)
	assert.ErrorIs(t, vesting.ValidateTerms(nil, 10, 2), vesting.ErrInvalidAmount)
	assert.ErrorIs(t, vesting.ValidateTerms(big.NewInt(1), 0, 0), vesting.ErrInvalidSchedule)
	assert.ErrorIs(t, vesting.ValidateTerms(big.NewInt(1), 4, 5), vesting.ErrInvalidSchedule)
}

func TestScheduleReleasesWholeAmount(t *testing.T) {
	g := vesting.Grant{Amount: big.NewInt(10), DurationMonths: 4, CliffMonths: 2, StartTime: start}
	rows := vesting.Schedule(g)
	require.Len(t, rows, 7)

	want := []string{"0", "0", "0", "2", "4", "6", "10"}
	for i, row := range rows {
		assert.Equal(t, uint64(i), row.Month)
		assert.Equal(t, want[i], row.Released.String(), "month %d", i)
		assert.True(t, row.Date.Equal(clock.AddMonths(start, i)))
	}
	assert.Equal(t, uint64(4), rows[6].VestedMonths)
	assert.Equal(t, "2", g.PerMonth().String())
}
