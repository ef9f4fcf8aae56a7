package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classfinder/internal/calendar"
	"classfinder/internal/model"
)

func campusTime(t *testing.T, value string) time.Time {
	t.Helper()
	loc := calendar.Default().Location
	ts, err := time.ParseInLocation("2006-01-02T15:04", value, loc)
	require.NoError(t, err)
	return ts
}

func roomWith(events ...model.Event) *model.Room {
	return &model.Room{ID: "1", Name: "ESJ 0202", Availability: events}
}

func booking(date string, start, end float64) model.Event {
	return model.Event{
		Date:      date,
		TimeStart: model.Hour(start),
		TimeEnd:   model.Hour(end),
		Status:    model.StatusOccupied,
		EventName: "CMSC131",
	}
}

func TestPointQueryScenario(t *testing.T) {
	e := New(nil)
	room := roomWith(booking("2024-03-04", 9.5, 11))

	assert.Equal(t, Unavailable, e.Room(room, Point(campusTime(t, "2024-03-04T10:00"))))
	assert.Equal(t, Available, e.Room(room, Point(campusTime(t, "2024-03-04T08:00"))))

	until, ok := e.AvailableUntil(room, campusTime(t, "2024-03-04T08:00"))
	require.True(t, ok)
	assert.Equal(t, "9:30 AM", until)
	assert.InDelta(t, 1.5, e.AvailableForHours(room, campusTime(t, "2024-03-04T08:00")), 1e-9)
}

func TestPointQueryBoundaries(t *testing.T) {
	e := New(nil)
	room := roomWith(booking("2024-03-04", 9.5, 11))

	assert.Equal(t, Unavailable, e.Room(room, Point(campusTime(t, "2024-03-04T09:30"))), "start is inclusive")
	assert.Equal(t, Available, e.Room(room, Point(campusTime(t, "2024-03-04T11:00"))), "end is exclusive")
}

func TestRangeQuery(t *testing.T) {
	e := New(nil)
	room := roomWith(booking("2024-03-04", 9.5, 11))

	cases := []struct {
		name  string
		start string
		end   string
		want  Status
	}{
		{"inside event", "2024-03-04T10:00", "2024-03-04T10:30", Unavailable},
		{"contains event", "2024-03-04T09:00", "2024-03-04T12:00", Unavailable},
		{"overlaps start", "2024-03-04T09:00", "2024-03-04T09:45", Unavailable},
		{"ends at event start", "2024-03-04T08:00", "2024-03-04T09:30", Available},
		{"starts at event end", "2024-03-04T11:00", "2024-03-04T12:00", Available},
		{"fully outside", "2024-03-04T13:00", "2024-03-04T15:00", Available},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := Range(campusTime(t, tc.start), campusTime(t, tc.end))
			assert.Equal(t, tc.want, e.Room(room, w))
		})
	}
}

func TestClosedDays(t *testing.T) {
	e := New(nil)
	room := roomWith(booking("2024-07-04", 9, 10))

	for _, ts := range []string{"2024-07-04T08:00", "2024-07-04T12:00", "2024-07-04T21:00"} {
		v := e.Explain(room, Point(campusTime(t, ts)))
		assert.Equal(t, Closed, v.Status, ts)
		assert.Equal(t, ReasonHoliday, v.Reason, ts)
	}

	weekend := e.Explain(roomWith(), Point(campusTime(t, "2024-03-02T12:00")))
	assert.Equal(t, Closed, weekend.Status)
	assert.Equal(t, ReasonWeekend, weekend.Reason)

	thanksgivingBreak := e.Room(roomWith(), Range(campusTime(t, "2024-11-29T09:00"), campusTime(t, "2024-11-29T10:00")))
	assert.Equal(t, Closed, thanksgivingBreak)
}

func TestOutsideOperatingHours(t *testing.T) {
	e := New(nil)
	room := roomWith()

	assert.Equal(t, Closed, e.Room(room, Point(campusTime(t, "2024-03-04T06:59"))))
	assert.Equal(t, Available, e.Room(room, Point(campusTime(t, "2024-03-04T07:00"))))
	assert.Equal(t, Closed, e.Room(room, Point(campusTime(t, "2024-03-04T22:00"))))

	_, ok := e.AvailableUntil(room, campusTime(t, "2024-03-04T23:00"))
	assert.False(t, ok)
	assert.Zero(t, e.AvailableForHours(room, campusTime(t, "2024-03-04T23:00")))
}

func TestOnlyOccupyingEventsOnTheDateBlock(t *testing.T) {
	e := New(nil)
	info := booking("2024-03-04", 9, 12)
	info.Status = 2
	otherDay := booking("2024-03-05", 9, 12)
	withTime := booking("2024-03-06T00:00:00", 9, 12)
	room := roomWith(info, otherDay, withTime)

	now := Point(campusTime(t, "2024-03-04T10:00"))
	assert.Equal(t, Available, e.Room(room, now))
	assert.Equal(t, ReasonNoEventsToday, e.Explain(room, now).Reason)

	assert.Equal(t, Unavailable, e.Room(room, Point(campusTime(t, "2024-03-06T10:00"))), "date with time suffix still matches")
}

func TestMalformedEventsNeverMatch(t *testing.T) {
	e := New(nil)
	bad := model.Event{Date: "2024-03-04", Status: model.StatusOccupied}
	room := roomWith(bad)

	assert.Equal(t, Available, e.Room(room, Point(campusTime(t, "2024-03-04T10:00"))))
	until, ok := e.AvailableUntil(room, campusTime(t, "2024-03-04T10:00"))
	require.True(t, ok)
	assert.Equal(t, "10:00 PM", until)
}

func TestNoScheduleData(t *testing.T) {
	e := New(nil)
	room := &model.Room{ID: "1"}

	v := e.Explain(room, Point(campusTime(t, "2024-03-04T10:00")))
	assert.Equal(t, Available, v.Status)
	assert.Equal(t, ReasonNoSchedule, v.Reason)
}

func TestAvailableUntilPicksNextEvent(t *testing.T) {
	e := New(nil)
	room := roomWith(
		booking("2024-03-04", 16, 17),
		booking("2024-03-04", 9, 10),
		booking("2024-03-04", 13.25, 14),
	)

	until, ok := e.AvailableUntil(room, campusTime(t, "2024-03-04T10:30"))
	require.True(t, ok)
	assert.Equal(t, "1:15 PM", until)

	until, ok = e.AvailableUntil(room, campusTime(t, "2024-03-04T17:30"))
	require.True(t, ok)
	assert.Equal(t, "10:00 PM", until)
	assert.InDelta(t, 4.5, e.AvailableForHours(room, campusTime(t, "2024-03-04T17:30")), 1e-9)

	_, ok = e.AvailableUntil(room, campusTime(t, "2024-03-04T09:15"))
	assert.False(t, ok)
}

func TestBuildingAggregation(t *testing.T) {
	e := New(nil)
	busy := roomWith(booking("2024-03-04", 9, 12))
	free := roomWith()
	now := Point(campusTime(t, "2024-03-04T10:00"))

	assert.Equal(t, NoData, e.Building(nil, now))
	assert.Equal(t, Available, e.Building([]*model.Room{busy, free}, now))
	assert.Equal(t, Available, e.Building([]*model.Room{free, roomWith()}, now))
	assert.Equal(t, Unavailable, e.Building([]*model.Room{busy}, now))
	assert.Equal(t, Closed, e.Building([]*model.Room{busy, free}, Point(campusTime(t, "2024-03-04T23:00"))))
}

func TestFormatHour(t *testing.T) {
	assert.Equal(t, "9:30 AM", FormatHour(9.5))
	assert.Equal(t, "12:00 PM", FormatHour(12))
	assert.Equal(t, "10:00 PM", FormatHour(22))
	assert.Equal(t, "2:45 PM", FormatHour(14.75))
}
