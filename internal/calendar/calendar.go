// Package calendar decides whether the campus is operating on a given day
// and during which hours.
package calendar

import (
	"time"
	_ "time/tzdata" // campus zone must resolve on hosts without zoneinfo
)

// CampusTimezone is the zone all campus dates and hours are evaluated in.
const CampusTimezone = "America/New_York"

const (
	DefaultOpenHour  = 7
	DefaultCloseHour = 22
)

// DefaultFixedHolidays are year-agnostic closure dates (MM-DD).
var DefaultFixedHolidays = map[string]string{
	"01-01": "New Year's Day",
	"06-19": "Juneteenth",
	"07-04": "Independence Day",
	"12-24": "Christmas Eve",
	"12-25": "Christmas Day",
	"12-31": "New Year's Eve",
}

// Calendar holds the campus operating rules. The zero value is not usable;
// construct with Default or New.
type Calendar struct {
	Location      *time.Location
	OpenHour      float64
	CloseHour     float64
	FixedHolidays map[string]string
}

// Default returns the calendar for America/New_York, 07:00-22:00.
func Default() *Calendar {
	loc, err := time.LoadLocation(CampusTimezone)
	if err != nil {
		// Only possible if tzdata is stripped from the binary.
		loc = time.UTC
	}
	return &Calendar{
		Location:      loc,
		OpenHour:      DefaultOpenHour,
		CloseHour:     DefaultCloseHour,
		FixedHolidays: DefaultFixedHolidays,
	}
}

// New returns a calendar for the given IANA zone and daily hours.
func New(timezone string, openHour, closeHour float64) (*Calendar, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, err
	}
	return &Calendar{
		Location:      loc,
		OpenHour:      openHour,
		CloseHour:     closeHour,
		FixedHolidays: DefaultFixedHolidays,
	}, nil
}

// Local converts t into the campus zone.
func (c *Calendar) Local(t time.Time) time.Time {
	return t.In(c.Location)
}

// DateString formats t's campus-local date as YYYY-MM-DD.
func (c *Calendar) DateString(t time.Time) string {
	return c.Local(t).Format(time.DateOnly)
}

// Today returns the campus-local date of now as YYYY-MM-DD.
func (c *Calendar) Today(now time.Time) string {
	return c.DateString(now)
}

// IsWeekend reports whether t falls on Saturday or Sunday in campus time.
func (c *Calendar) IsWeekend(t time.Time) bool {
	switch c.Local(t).Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	return false
}

// HolidayName returns the name of the fixed or floating holiday on t's
// campus-local date, or "" when t is not a holiday.
func (c *Calendar) HolidayName(t time.Time) string {
	local := c.Local(t)
	md := local.Format("01-02")
	if name, ok := c.FixedHolidays[md]; ok {
		return name
	}
	for _, h := range FloatingHolidays(local.Year()) {
		if h.Date.Format("01-02") == md {
			return h.Name
		}
	}
	return ""
}

// IsHoliday reports whether t's campus-local date is a holiday.
func (c *Calendar) IsHoliday(t time.Time) bool {
	return c.HolidayName(t) != ""
}

// IsOperatingDay is false on weekends and holidays.
func (c *Calendar) IsOperatingDay(t time.Time) bool {
	return !c.IsWeekend(t) && !c.IsHoliday(t)
}

// OperatingWindow returns the daily [open, close) bounds in decimal hours.
func (c *Calendar) OperatingWindow() (open, close float64) {
	return c.OpenHour, c.CloseHour
}

// DecimalHour returns t's campus-local time of day in hours with minute
// precision. Seconds are ignored.
func (c *Calendar) DecimalHour(t time.Time) float64 {
	local := c.Local(t)
	return float64(local.Hour()) + float64(local.Minute())/60
}

// InOperatingHours reports whether t's time of day is inside [open, close).
// It does not look at the date.
func (c *Calendar) InOperatingHours(t time.Time) bool {
	h := c.DecimalHour(t)
	return h >= c.OpenHour && h < c.CloseHour
}

// Holiday is a named date.
type Holiday struct {
	Name string
	Date time.Time
}

// FloatingHolidays returns the weekday-anchored holidays of year as UTC
// midnight dates.
func FloatingHolidays(year int) []Holiday {
	thanksgiving := NthWeekdayOf(year, time.November, time.Thursday, 4)
	return []Holiday{
		{Name: "Martin Luther King Jr. Day", Date: NthWeekdayOf(year, time.January, time.Monday, 3)},
		{Name: "Memorial Day", Date: NthWeekdayOf(year, time.May, time.Monday, -1)},
		{Name: "Labor Day", Date: NthWeekdayOf(year, time.September, time.Monday, 1)},
		{Name: "Thanksgiving", Date: thanksgiving},
		{Name: "Thanksgiving Break", Date: thanksgiving.AddDate(0, 0, 1)},
	}
}

// NthWeekdayOf returns the date of the nth weekday of month in year.
// n > 0 counts from the start of the month (1 = first); n < 0 selects the
// last occurrence. Dates are UTC midnight.
func NthWeekdayOf(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	if n > 0 {
		first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		diff := (int(weekday) - int(first.Weekday()) + 7) % 7
		return first.AddDate(0, 0, diff+(n-1)*7)
	}
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	diff := (int(last.Weekday()) - int(weekday) + 7) % 7
	return last.AddDate(0, 0, -diff)
}
