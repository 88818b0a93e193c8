// Package clock supplies the time source the vault and marketplace engines
// read once per operation, plus the calendar-month arithmetic vesting uses.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// System is the wall clock, always in UTC.
type System struct{}

// Now returns time.Now in UTC.
func (System) Now() time.Time { return time.Now().UTC() }

// Manual is a clock that only moves when told to. Safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a manual clock at t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t.UTC()}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t. Moving backwards is allowed; engines treat
// time before a grant's start as zero elapsed months.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t.UTC()
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

// AdvanceMonths moves the clock forward by n calendar months.
func (m *Manual) AdvanceMonths(n int) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = AddMonths(m.now, n)
	return m.now
}

// AddMonths adds n calendar months to t. When the target month is shorter
// than t's day, the result clamps to the last day of that month
// (Jan 31 + 1 month = Feb 28/29), unlike time.AddDate which normalises into
// the following month.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

// MonthsBetween returns the number of whole calendar months from start to
// end, truncated. It is zero when end is not after start.
func MonthsBetween(start, end time.Time) uint64 {
	if !end.After(start) {
		return 0
	}
	end = end.In(start.Location())
	sy, sm, _ := start.Date()
	ey, em, _ := end.Date()
	months := (ey-sy)*12 + int(em-sm)
	// Step back while the anniversary overshoots end.
	for months > 0 && AddMonths(start, months).After(end) {
		months--
	}
	return uint64(months)
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
