package model

import (
	"bytes"
	"errors"
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// NotAvailable is the placeholder the schedule provider contract uses for
// missing values.
const NotAvailable = "N/A"

// StatusOccupied is the provider type_id of an actual booking. Every other
// status is informational and never blocks a room.
const StatusOccupied = 1

// RawBuilding is one entry of the building metadata source.
type RawBuilding struct {
	Name       string  `json:"name"`
	Code       string  `json:"code"`
	BuildingID string  `json:"building_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}

// RawRoom is one entry of the room metadata source.
type RawRoom struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Building groups rooms under a campus building. Code is nil when the
// source did not provide one; the building is then keyed by Name.
type Building struct {
	Name       string  `json:"name"`
	Code       *string `json:"code"`
	BuildingID string  `json:"building_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Rooms      []*Room `json:"classrooms"`
}

// Key returns the building identity: code when present, else name.
func (b *Building) Key() string {
	if b.Code != nil && *b.Code != "" {
		return *b.Code
	}
	return b.Name
}

// CodeString returns the building code or "" when absent.
func (b *Building) CodeString() string {
	if b.Code == nil {
		return ""
	}
	return *b.Code
}

// Room is a bookable space together with its fetched schedule.
type Room struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	RoomNumber        string  `json:"room_number"`
	BuildingName      string  `json:"building_name"`
	BuildingCode      *string `json:"building_code"`
	BuildingLatitude  float64 `json:"building_latitude"`
	BuildingLongitude float64 `json:"building_longitude"`
	Availability      []Event `json:"availability_times"`
}

// UnmatchedRoom is a room whose building could not be resolved
// automatically. The building fields are filled in by hand before the
// record is merged back on a later run.
type UnmatchedRoom struct {
	ID                string   `json:"id" csv:"id"`
	Name              string   `json:"name" csv:"name"`
	RoomNumber        string   `json:"room_number" csv:"room_number"`
	BuildingName      string   `json:"building_name,omitempty" csv:"building_name" validate:"required"`
	BuildingCode      string   `json:"building_code,omitempty" csv:"building_code" validate:"required"`
	BuildingLatitude  *float64 `json:"building_latitude,omitempty" csv:"building_latitude,omitempty" validate:"required"`
	BuildingLongitude *float64 `json:"building_longitude,omitempty" csv:"building_longitude,omitempty" validate:"required"`
	Availability      []Event  `json:"availability_times,omitempty" csv:"-"`
}

// Event is one deduplicated schedule slot of a room.
type Event struct {
	Date              string      `json:"date"`
	TimeStart         DecimalHour `json:"time_start"`
	TimeEnd           DecimalHour `json:"time_end"`
	Status            int         `json:"status"`
	EventName         string      `json:"event_name"`
	AdditionalDetails string      `json:"additional_details"`
}

// Day returns the calendar date part of Date, dropping any time suffix
// ("2024-03-04T00:00:00" -> "2024-03-04").
func (e Event) Day() string {
	d, _, _ := strings.Cut(e.Date, "T")
	return d
}

// Occupying reports whether the event blocks the room.
func (e Event) Occupying() bool {
	return e.Status == StatusOccupied
}

// DecimalHour is a time of day expressed in hours (9.5 == 09:30). The zero
// value is "N/A": the provider did not supply the value.
//
// It is comparable so it can be part of map keys.
type DecimalHour struct {
	Hours float64
	Valid bool
}

// Hour returns a valid DecimalHour.
func Hour(h float64) DecimalHour {
	return DecimalHour{Hours: h, Valid: true}
}

// Clock splits the value into hour and minute, rounding to the nearest
// minute. Minute may be 60 for values just below a full hour; callers
// building time.Time values rely on time.Date normalizing it.
func (d DecimalHour) Clock() (hour, minute int) {
	h := int(d.Hours)
	m := int((d.Hours-float64(h))*60 + 0.5)
	return h, m
}

func (d DecimalHour) String() string {
	if !d.Valid {
		return NotAvailable
	}
	return strconv.FormatFloat(d.Hours, 'f', -1, 64)
}

func (d DecimalHour) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte(`"` + NotAvailable + `"`), nil
	}
	return []byte(strconv.FormatFloat(d.Hours, 'f', -1, 64)), nil
}

// UnmarshalJSON accepts a number, a numeric string, null or "N/A".
func (d *DecimalHour) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*d = DecimalHour{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" || s == NotAvailable {
			*d = DecimalHour{}
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			// Unparseable hours never match a query; keep the record.
			*d = DecimalHour{}
			return nil
		}
		*d = finiteHour(f)
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return errors.New("decimal hour: " + err.Error())
	}
	*d = finiteHour(f)
	return nil
}

// finiteHour maps NaN and ±Inf to N/A; they cannot be written back as JSON.
func finiteHour(f float64) DecimalHour {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return DecimalHour{}
	}
	return Hour(f)
}
