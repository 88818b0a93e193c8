package clock_test

import (
	"sync"
	"testing"
	"time"

	"github.com/Mohsinsiddi/w3vault/internal/clock"
	"github.com/stretchr/testify/assert"
)

var tge = time.Date(2024, time.January, 15, 12, 0, 0, 0, time.UTC)

func TestMonthsBetweenWholeMonths(t *testing.T) {
	for n := 0; n <= 40; n++ {
		assert.Equal(t, uint64(n), clock.MonthsBetween(tge, clock.AddMonths(tge, n)), "n=%d", n)
	}
}

func TestMonthsBetweenTruncatesPartialMonth(t *testing.T) {
	end := clock.AddMonths(tge, 3).Add(-time.Second)
	assert.Equal(t, uint64(2), clock.MonthsBetween(tge, end))
}

func TestMonthsBetweenEndBeforeStart(t *testing.T) {
	assert.Equal(t, uint64(0), clock.MonthsBetween(tge, tge.Add(-time.Hour)))
	assert.Equal(t, uint64(0), clock.MonthsBetween(tge, tge))
}

func TestAddMonthsClampsToMonthEnd(t *testing.T) {
	jan31 := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), clock.AddMonths(jan31, 1))
	assert.Equal(t, time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC), clock.AddMonths(jan31, 13))
	assert.Equal(t, time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC), clock.AddMonths(jan31, 2))
}

func TestMonthsBetweenFromMonthEnd(t *testing.T) {
	jan31 := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, uint64(0), clock.MonthsBetween(jan31, time.Date(2024, time.February, 28, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, uint64(1), clock.MonthsBetween(jan31, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)))
}

func TestMonthsBetweenNonDecreasing(t *testing.T) {
	prev := uint64(0)
	for d := 0; d < 800; d++ {
		got := clock.MonthsBetween(tge, tge.AddDate(0, 0, d))
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

func TestManualClock(t *testing.T) {
	c := clock.NewManual(tge)
	assert.Equal(t, tge, c.Now())

	c.Advance(time.Hour)
	assert.Equal(t, tge.Add(time.Hour), c.Now())

	c.AdvanceMonths(2)
	assert.Equal(t, uint64(2), clock.MonthsBetween(tge, c.Now()))

	c.Set(tge)
	assert.Equal(t, tge, c.Now())
}

func TestManualClockConcurrentAdvance(t *testing.T) {
	c := clock.NewManual(tge)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Advance(time.Minute)
		}()
	}
	wg.Wait()
	assert.Equal(t, tge.Add(50*time.Minute), c.Now())
}

func TestSystemClockIsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, clock.System{}.Now().Location())
}
