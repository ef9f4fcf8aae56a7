package ics

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classfinder/internal/calendar"
	"classfinder/internal/model"
)

func julyRoom() *model.Room {
	return &model.Room{
		ID:   "r1",
		Name: "ESJ 0202",
		Availability: []model.Event{
			{Date: "2024-07-03T00:00:00", TimeStart: model.Hour(9.5), TimeEnd: model.Hour(11), Status: 1, EventName: "ENGL101", AdditionalDetails: "Lecture"},
			{Date: "2024-07-03T00:00:00", TimeStart: model.Hour(13), TimeEnd: model.Hour(14), Status: 0, EventName: "Hold"},
			{Date: "2024-07-03T00:00:00", TimeEnd: model.Hour(15), Status: 1, EventName: "Broken"},
			{Date: "2024-07-10T00:00:00", TimeStart: model.Hour(8), TimeEnd: model.Hour(9), Status: 1, EventName: "Later"},
		},
	}
}

func export(t *testing.T, room *model.Room) *ical.Calendar {
	t.Helper()
	cal := calendar.Default()
	out, err := RoomCalendar(room, ExportConfig{
		Calendar: cal,
		From:     time.Date(2024, time.July, 3, 12, 0, 0, 0, cal.Location),
		To:       time.Date(2024, time.July, 7, 12, 0, 0, 0, cal.Location),
		Stamp:    time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "BEGIN:VCALENDAR"))

	parsed, err := ical.ParseCalendar(strings.NewReader(out))
	require.NoError(t, err)
	return parsed
}

func propValue(ev *ical.VEvent, name ical.ComponentProperty) string {
	if p := ev.GetProperty(name); p != nil {
		return p.Value
	}
	return ""
}

func TestRoomCalendarTimedEvents(t *testing.T) {
	parsed := export(t, julyRoom())
	loc := calendar.Default().Location

	var booked []*ical.VEvent
	for _, ev := range parsed.Events() {
		if !strings.HasPrefix(ev.Id(), "closure-") {
			booked = append(booked, ev)
		}
	}
	require.Len(t, booked, 1, "only occupying, well-formed events in range")

	ev := booked[0]
	assert.Equal(t, "r1-20240703-0930-1100@classfinder", ev.Id())
	assert.Equal(t, "ENGL101", propValue(ev, ical.ComponentPropertySummary))
	assert.Equal(t, "Lecture", propValue(ev, ical.ComponentPropertyDescription))
	assert.Equal(t, "ESJ 0202", propValue(ev, ical.ComponentPropertyLocation))

	start, err := ev.GetStartAt()
	require.NoError(t, err)
	end, err := ev.GetEndAt()
	require.NoError(t, err)
	assert.True(t, start.Equal(time.Date(2024, time.July, 3, 9, 30, 0, 0, loc)), start.String())
	assert.True(t, end.Equal(time.Date(2024, time.July, 3, 11, 0, 0, 0, loc)), end.String())
}

func TestRoomCalendarClosures(t *testing.T) {
	parsed := export(t, julyRoom())

	closures := map[string]string{}
	for _, ev := range parsed.Events() {
		if strings.HasPrefix(ev.Id(), "closure-") {
			closures[propValue(ev, ical.ComponentPropertyDtStart)] = propValue(ev, ical.ComponentPropertySummary)
		}
	}
	assert.Equal(t, map[string]string{
		"20240704": "Campus closed: Independence Day",
		"20240706": "Campus closed: Weekend",
		"20240707": "Campus closed: Weekend",
	}, closures)
}

func TestEventUIDIsStable(t *testing.T) {
	ev := model.Event{Date: "2024-03-04T00:00:00", TimeStart: model.Hour(10.25), TimeEnd: model.Hour(11.75)}
	assert.Equal(t, "42-20240304-1015-1145@classfinder", EventUID("42", ev))
	assert.Equal(t, EventUID("42", ev), EventUID("42", ev))
}

func TestRoomCalendarRejectsBadInput(t *testing.T) {
	_, err := RoomCalendar(nil, ExportConfig{})
	assert.Error(t, err)

	now := time.Now()
	_, err = RoomCalendar(julyRoom(), ExportConfig{From: now, To: now.Add(-48 * time.Hour)})
	assert.Error(t, err)
}
