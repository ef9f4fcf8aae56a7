package schedule

import (
	"bytes"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"classfinder/internal/model"
)

// Payload is the availability response of the schedule provider.
type Payload struct {
	Subjects []Subject `json:"subjects"`
}

// Subject groups the provider items of one date.
type Subject struct {
	ItemDate string `json:"item_date"`
	Items    []Item `json:"items"`
}

// Item is a single provider schedule entry.
type Item struct {
	Start    model.DecimalHour `json:"start"`
	End      model.DecimalHour `json:"end"`
	ItemName looseString       `json:"itemName"`
	ItemID2  looseString       `json:"itemId2"`
	TypeID   *looseInt         `json:"type_id"`
}

// slotKey identifies one time slot of a room. Absent hours compare equal
// to each other, matching the provider's "N/A" placeholder.
type slotKey struct {
	date  string
	start model.DecimalHour
	end   model.DecimalHour
}

type slot struct {
	event   model.Event
	names   []string
	details []string
}

// Normalize flattens the provider payload into one Event per distinct
// (date, start, end). Items sharing a slot are merged: their names and
// details are joined with ", " in the order they were seen. Output order is
// the order in which each slot first appeared.
func Normalize(p Payload) []model.Event {
	index := make(map[slotKey]int)
	slots := make([]*slot, 0)

	for _, subject := range p.Subjects {
		for _, item := range subject.Items {
			key := slotKey{date: subject.ItemDate, start: item.Start, end: item.End}
			name := item.ItemName.orNA()
			details := item.ItemID2.orNA()

			if i, ok := index[key]; ok {
				slots[i].names = append(slots[i].names, name)
				slots[i].details = append(slots[i].details, details)
				continue
			}

			status := 0
			if item.TypeID != nil {
				status = int(*item.TypeID)
			}
			index[key] = len(slots)
			slots = append(slots, &slot{
				event: model.Event{
					Date:      subject.ItemDate,
					TimeStart: item.Start,
					TimeEnd:   item.End,
					Status:    status,
				},
				names:   []string{name},
				details: []string{details},
			})
		}
	}

	events := make([]model.Event, 0, len(slots))
	for _, s := range slots {
		ev := s.event
		ev.EventName = strings.Join(s.names, ", ")
		ev.AdditionalDetails = strings.Join(s.details, ", ")
		events = append(events, ev)
	}
	return events
}

// looseString accepts a JSON string or number; the provider is not
// consistent about item identifiers.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	*s = looseString(data)
	return nil
}

func (s looseString) orNA() string {
	if s == "" {
		return model.NotAvailable
	}
	return string(s)
}

// looseInt accepts a JSON number or a numeric string. Anything else decodes
// to 0, which never blocks a room.
type looseInt int

func (n *looseInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = looseInt(v)
	return nil
}
