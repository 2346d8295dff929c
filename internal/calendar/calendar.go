package calendar

import "time"

// Calendar answers whether a given day is eligible for a retry attempt.
type Calendar interface {
	IsWeekend(t time.Time) bool
	IsHoliday(t time.Time) bool
	IsBusinessDay(t time.Time) bool
}

// RegionCalendar combines the weekend rule with a per-region public holiday
// table. Dates are evaluated in the time's own location.
type RegionCalendar struct {
	holidays map[string]struct{}
}

// NewRegionCalendar returns the calendar for the given region code. Unknown
// regions get a weekend-only calendar.
func NewRegionCalendar(region string) *RegionCalendar {
	table, ok := holidayTables[region]
	if !ok {
		table = map[string]struct{}{}
	}
	return &RegionCalendar{holidays: table}
}

func (c *RegionCalendar) IsWeekend(t time.Time) bool {
	weekday := t.Weekday()
	return weekday == time.Saturday || weekday == time.Sunday
}

func (c *RegionCalendar) IsHoliday(t time.Time) bool {
	_, ok := c.holidays[t.Format("2006-01-02")]
	if ok {
		return true
	}
	// Fixed-date holidays recur every year.
	_, ok = c.holidays[t.Format("01-02")]
	return ok
}

func (c *RegionCalendar) IsBusinessDay(t time.Time) bool {
	return !c.IsWeekend(t) && !c.IsHoliday(t)
}
