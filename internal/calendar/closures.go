package calendar

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"
)

// Closure is a non-operating campus date.
type Closure struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

// ReasonWeekend marks a closure caused by Saturday/Sunday.
const ReasonWeekend = "Weekend"

type closureRule struct {
	name  string
	rrule string
}

// floatingRules mirror FloatingHolidays as RFC 5545 rules. The Friday after
// the fourth Thursday of November is always the single Friday between the
// 23rd and the 29th.
var floatingRules = []closureRule{
	{"Martin Luther King Jr. Day", "FREQ=YEARLY;BYMONTH=1;BYDAY=+3MO"},
	{"Memorial Day", "FREQ=YEARLY;BYMONTH=5;BYDAY=-1MO"},
	{"Labor Day", "FREQ=YEARLY;BYMONTH=9;BYDAY=+1MO"},
	{"Thanksgiving", "FREQ=YEARLY;BYMONTH=11;BYDAY=+4TH"},
	{"Thanksgiving Break", "FREQ=YEARLY;BYMONTH=11;BYDAY=FR;BYMONTHDAY=23,24,25,26,27,28,29"},
}

const weekendRule = "FREQ=WEEKLY;BYDAY=SA,SU"

func (c *Calendar) rules() []closureRule {
	out := make([]closureRule, 0, len(c.FixedHolidays)+len(floatingRules)+1)
	for md, name := range c.FixedHolidays {
		var month, day int
		if _, err := fmt.Sscanf(md, "%02d-%02d", &month, &day); err != nil {
			continue
		}
		out = append(out, closureRule{name, fmt.Sprintf("FREQ=YEARLY;BYMONTH=%d;BYMONTHDAY=%d", month, day)})
	}
	out = append(out, floatingRules...)
	out = append(out, closureRule{ReasonWeekend, weekendRule})
	return out
}

// Closures lists every non-operating date in [from, to] (campus-local
// dates, inclusive), sorted by date. A date that is both a holiday and a
// weekend is reported once with the holiday name.
func (c *Calendar) Closures(from, to time.Time) ([]Closure, error) {
	start := dateOnly(c.Local(from))
	end := dateOnly(c.Local(to))
	if end.Before(start) {
		return nil, errors.New("closures: range end is before start")
	}

	byDate := make(map[string]string)
	for _, rule := range c.rules() {
		r, err := rrule.StrToRRule(rule.rrule)
		if err != nil {
			return nil, fmt.Errorf("closures: rule %q: %w", rule.name, err)
		}
		r.DTStart(time.Date(start.Year(), time.January, 1, 0, 0, 0, 0, time.UTC))
		for _, d := range r.Between(start, end, true) {
			key := d.Format(time.DateOnly)
			if prev, ok := byDate[key]; ok && prev != ReasonWeekend {
				continue
			}
			byDate[key] = rule.name
		}
	}

	out := make([]Closure, 0, len(byDate))
	for date, reason := range byDate {
		out = append(out, Closure{Date: date, Reason: reason})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// dateOnly maps a local time onto UTC midnight of the same calendar date so
// rule expansion is free of DST shifts.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
