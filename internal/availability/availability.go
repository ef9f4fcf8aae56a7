// Package availability answers "is this room free?" questions against a
// room's fetched schedule and the campus operating calendar.
//
// Everything here is synchronous and side-effect free: a verdict is a pure
// function of (room, window, calendar).
package availability

import (
	"sort"
	"time"

	"classfinder/internal/calendar"
	"classfinder/internal/model"
)

// Status is the availability verdict shown to users.
type Status string

const (
	Available   Status = "Available"
	Unavailable Status = "Unavailable"
	Closed      Status = "Closed"
	NoData      Status = "No Data"
)

// Reasons attached to verdicts by Explain.
const (
	ReasonWeekend       = "Weekend"
	ReasonHoliday       = "Holiday"
	ReasonOutsideHours  = "Outside Operating Hours"
	ReasonNoSchedule    = "No Schedule Data"
	ReasonNoEventsToday = "No Events Today"
	ReasonNoConflicts   = "No Conflicts"
	ReasonConflicting   = "Conflicting Events"
	ReasonNoRooms       = "No Rooms"
	ReasonSomeAvailable = "At Least One Room Available"
	ReasonAllClosed     = "All Rooms Closed"
	ReasonNoneAvailable = "No Room Available"
)

// Window is the requested time span. Start == End is a point query
// ("is it free right now?"); Start < End is a range query.
type Window struct {
	Start time.Time
	End   time.Time
}

// Point returns a point window at t.
func Point(t time.Time) Window {
	return Window{Start: t, End: t}
}

// Range returns a range window [start, end).
func Range(start, end time.Time) Window {
	return Window{Start: start, End: end}
}

// IsPoint reports whether w is a point query. A window whose end is not
// after its start is treated as a point at Start.
func (w Window) IsPoint() bool {
	return !w.End.After(w.Start)
}

// Verdict is a Status with the reason it was reached. Conflicts lists the
// events that made a room Unavailable.
type Verdict struct {
	Status    Status        `json:"status"`
	Reason    string        `json:"reason"`
	Conflicts []model.Event `json:"conflicts,omitempty"`
}

// Engine evaluates availability under a campus calendar.
type Engine struct {
	Calendar *calendar.Calendar
}

// New returns an Engine for cal. A nil cal uses calendar.Default().
func New(cal *calendar.Calendar) *Engine {
	if cal == nil {
		cal = calendar.Default()
	}
	return &Engine{Calendar: cal}
}

// Room returns the availability status of room over w.
func (e *Engine) Room(room *model.Room, w Window) Status {
	return e.Explain(room, w).Status
}

// Explain evaluates room over w and reports why.
func (e *Engine) Explain(room *model.Room, w Window) Verdict {
	cal := e.Calendar
	start := cal.Local(w.Start)
	end := start
	if !w.IsPoint() {
		end = cal.Local(w.End)
	}

	if cal.IsWeekend(start) {
		return Verdict{Status: Closed, Reason: ReasonWeekend}
	}
	if cal.IsHoliday(start) {
		return Verdict{Status: Closed, Reason: ReasonHoliday}
	}
	if !cal.InOperatingHours(start) {
		return Verdict{Status: Closed, Reason: ReasonOutsideHours}
	}

	if room == nil || room.Availability == nil {
		return Verdict{Status: Available, Reason: ReasonNoSchedule}
	}

	today := e.eventsOn(room, start)
	if len(today) == 0 {
		return Verdict{Status: Available, Reason: ReasonNoEventsToday}
	}

	var conflicts []model.Event
	for _, ev := range today {
		evStart, evEnd, ok := e.bounds(start, ev)
		if !ok {
			continue
		}
		var hit bool
		if w.IsPoint() {
			hit = !start.Before(evStart) && start.Before(evEnd)
		} else {
			hit = end.After(evStart) && start.Before(evEnd)
		}
		if hit {
			conflicts = append(conflicts, ev)
		}
	}

	if len(conflicts) > 0 {
		return Verdict{Status: Unavailable, Reason: ReasonConflicting, Conflicts: conflicts}
	}
	return Verdict{Status: Available, Reason: ReasonNoConflicts}
}

// Building aggregates room verdicts: Available if any room is available,
// Closed if every room is closed, Unavailable otherwise. An empty building
// has No Data.
func (e *Engine) Building(rooms []*model.Room, w Window) Status {
	return e.ExplainBuilding(rooms, w).Status
}

// ExplainBuilding is Building with a reason attached.
func (e *Engine) ExplainBuilding(rooms []*model.Room, w Window) Verdict {
	if len(rooms) == 0 {
		return Verdict{Status: NoData, Reason: ReasonNoRooms}
	}
	allClosed := true
	for _, r := range rooms {
		switch e.Room(r, w) {
		case Available:
			return Verdict{Status: Available, Reason: ReasonSomeAvailable}
		case Closed:
		default:
			allClosed = false
		}
	}
	if allClosed {
		return Verdict{Status: Closed, Reason: ReasonAllClosed}
	}
	return Verdict{Status: Unavailable, Reason: ReasonNoneAvailable}
}

// AvailableUntil returns when the room's current free period ends,
// formatted like "2:30 PM". ok is false when the room is not available at
// now. Without further bookings today the answer is closing time.
func (e *Engine) AvailableUntil(room *model.Room, now time.Time) (string, bool) {
	boundary, ok := e.freeUntil(room, now)
	if !ok {
		return "", false
	}
	return FormatHour(boundary), true
}

// AvailableForHours returns how many hours the room stays free from now,
// or 0 when it is not available.
func (e *Engine) AvailableForHours(room *model.Room, now time.Time) float64 {
	boundary, ok := e.freeUntil(room, now)
	if !ok {
		return 0
	}
	return boundary - e.Calendar.DecimalHour(now)
}

// freeUntil returns the decimal hour at which the current free period ends.
func (e *Engine) freeUntil(room *model.Room, now time.Time) (float64, bool) {
	if e.Room(room, Point(now)) != Available {
		return 0, false
	}
	current := e.Calendar.DecimalHour(now)

	var starts []float64
	if room != nil {
		for _, ev := range e.eventsOn(room, e.Calendar.Local(now)) {
			if ev.TimeStart.Valid {
				starts = append(starts, ev.TimeStart.Hours)
			}
		}
	}
	sort.Float64s(starts)
	for _, s := range starts {
		if s > current {
			return s, true
		}
	}
	_, closing := e.Calendar.OperatingWindow()
	return closing, true
}

// eventsOn returns the room's occupying events on day's campus-local date.
func (e *Engine) eventsOn(room *model.Room, day time.Time) []model.Event {
	date := day.Format(time.DateOnly)
	var out []model.Event
	for _, ev := range room.Availability {
		if ev.Occupying() && ev.Day() == date {
			out = append(out, ev)
		}
	}
	return out
}

// bounds anchors ev's decimal hours onto day's date. A fresh value is built
// for each bound; day is never modified.
func (e *Engine) bounds(day time.Time, ev model.Event) (time.Time, time.Time, bool) {
	if !ev.TimeStart.Valid || !ev.TimeEnd.Valid {
		return time.Time{}, time.Time{}, false
	}
	return atHour(day, ev.TimeStart), atHour(day, ev.TimeEnd), true
}

func atHour(day time.Time, h model.DecimalHour) time.Time {
	hour, minute := h.Clock()
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

// FormatHour renders decimal hours as a 12-hour clock string ("9:30 AM").
func FormatHour(h float64) string {
	hour, minute := model.Hour(h).Clock()
	return time.Date(2000, time.January, 1, hour, minute, 0, 0, time.UTC).Format("3:04 PM")
}
