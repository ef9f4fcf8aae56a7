// Package ics renders a room's booked slots and campus closures as an
// iCalendar feed.
package ics

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"classfinder/internal/calendar"
	appLog "classfinder/internal/log"
	"classfinder/internal/model"
)

const (
	productID = "-//classfinder//room availability//EN"
	uidDomain = "classfinder"
)

// ExportConfig controls which days end up in a room feed.
type ExportConfig struct {
	Calendar *calendar.Calendar
	// From / To are inclusive campus dates.
	From time.Time
	To   time.Time
	// Stamp is written as DTSTAMP on every VEVENT. Zero means time.Now.
	Stamp time.Time
}

// RoomCalendar returns an iCalendar document with one timed VEVENT per
// occupying event of room in range, and one all-day VEVENT per campus
// closure. Events with an unknown start or end are skipped.
func RoomCalendar(room *model.Room, cfg ExportConfig) (string, error) {
	if room == nil {
		return "", errors.New("ics: nil room")
	}
	if cfg.Calendar == nil {
		cfg.Calendar = calendar.Default()
	}
	if cfg.To.Before(cfg.From) {
		return "", errors.New("ics: To is before From")
	}
	if cfg.Stamp.IsZero() {
		cfg.Stamp = time.Now()
	}
	c := cfg.Calendar

	fromDay := c.DateString(cfg.From)
	toDay := c.DateString(cfg.To)

	out := ical.NewCalendar()
	out.SetMethod(ical.MethodPublish)
	out.SetProductId(productID)
	out.SetXWRCalName(roomLabel(room))
	out.SetXWRTimezone(c.Location.String())

	events := make([]model.Event, 0, len(room.Availability))
	for _, ev := range room.Availability {
		if !ev.Occupying() || !ev.TimeStart.Valid || !ev.TimeEnd.Valid {
			continue
		}
		day := ev.Day()
		if day < fromDay || day > toDay {
			continue
		}
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Day() != events[j].Day() {
			return events[i].Day() < events[j].Day()
		}
		return events[i].TimeStart.Hours < events[j].TimeStart.Hours
	})

	skipped := 0
	for _, ev := range events {
		day, err := time.ParseInLocation("2006-01-02", ev.Day(), c.Location)
		if err != nil {
			skipped++
			continue
		}
		start := clockOn(day, ev.TimeStart)
		end := clockOn(day, ev.TimeEnd)
		if !end.After(start) {
			skipped++
			continue
		}

		vev := out.AddEvent(EventUID(room.ID, ev))
		vev.SetDtStampTime(cfg.Stamp)
		vev.SetStartAt(start)
		vev.SetEndAt(end)
		vev.SetSummary(summary(ev))
		if ev.AdditionalDetails != "" && ev.AdditionalDetails != model.NotAvailable {
			vev.SetDescription(ev.AdditionalDetails)
		}
		vev.SetLocation(roomLabel(room))
		vev.SetProperty(ical.ComponentPropertyStatus, "CONFIRMED")
	}
	if skipped > 0 {
		appLog.Debug("ics export skipped events", "room_id", room.ID, "count", skipped)
	}

	closures, err := c.Closures(cfg.From, cfg.To)
	if err != nil {
		return "", err
	}
	for _, cl := range closures {
		day, err := time.Parse(time.DateOnly, cl.Date)
		if err != nil {
			return "", fmt.Errorf("ics: closure date %q: %w", cl.Date, err)
		}
		vev := out.AddEvent(fmt.Sprintf("closure-%s@%s", day.Format("20060102"), uidDomain))
		vev.SetDtStampTime(cfg.Stamp)
		vev.SetAllDayStartAt(day)
		vev.SetAllDayEndAt(day.AddDate(0, 0, 1))
		vev.SetSummary("Campus closed: " + cl.Reason)
		vev.SetProperty(ical.ComponentPropertyTransp, "TRANSPARENT")
	}

	return out.Serialize(), nil
}

// EventUID is stable across runs for the same room and slot.
func EventUID(roomID string, ev model.Event) string {
	return fmt.Sprintf("%s-%s-%s-%s@%s",
		roomID,
		strings.ReplaceAll(ev.Day(), "-", ""),
		compactClock(ev.TimeStart),
		compactClock(ev.TimeEnd),
		uidDomain)
}

func compactClock(h model.DecimalHour) string {
	return clockOn(time.Time{}, h).Format("1504")
}

func clockOn(day time.Time, h model.DecimalHour) time.Time {
	hour, minute := h.Clock()
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

func summary(ev model.Event) string {
	if ev.EventName == "" || ev.EventName == model.NotAvailable {
		return "Booked"
	}
	return ev.EventName
}

func roomLabel(room *model.Room) string {
	if room.Name != "" {
		return room.Name
	}
	return room.ID
}
