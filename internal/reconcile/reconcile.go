// Package reconcile attaches raw room records to their buildings.
package reconcile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	appLog "classfinder/internal/log"
	"classfinder/internal/model"
)

var validate = validator.New()

// Result is the outcome of one reconciliation.
type Result struct {
	// Buildings in source order, followed by buildings created from labels.
	// Buildings may have no rooms; dropping them is the caller's decision.
	Buildings []*model.Building
	// Unmatched rooms whose building could not be resolved.
	Unmatched []model.UnmatchedRoom
	// Rejected labeled entries that lacked required building fields.
	Rejected int
}

// Rooms returns every room of every building in building order.
func (r Result) Rooms() []*model.Room {
	var out []*model.Room
	for _, b := range r.Buildings {
		out = append(out, b.Rooms...)
	}
	return out
}

// index resolves building tokens. It lives for a single reconciliation.
type index struct {
	byCode map[string]*model.Building
	byName map[string]*model.Building
}

func newIndex() *index {
	return &index{
		byCode: make(map[string]*model.Building),
		byName: make(map[string]*model.Building),
	}
}

func (ix *index) add(b *model.Building) {
	if code := b.CodeString(); code != "" {
		ix.byCode[code] = b
	}
	ix.byName[b.Name] = b
}

// lookup tries the token as a building code first, then as a building name.
func (ix *index) lookup(code, name string) *model.Building {
	if b, ok := ix.byCode[code]; ok {
		return b
	}
	if b, ok := ix.byName[name]; ok {
		return b
	}
	return nil
}

// Reconcile groups rooms under buildings.
//
// A room name is "<building token> <room number>". The token is looked up
// as a building code, then as a building name. Rooms that cannot be placed
// are returned as unmatched. Labeled entries (previously unmatched rooms with
// building fields filled in by hand) are merged last, creating buildings as
// needed; entries missing any building field are skipped and counted.
func Reconcile(rawBuildings []model.RawBuilding, rawRooms []model.RawRoom, labeled []model.UnmatchedRoom) Result {
	ix := newIndex()
	res := Result{Buildings: make([]*model.Building, 0, len(rawBuildings))}

	for _, rb := range rawBuildings {
		b := &model.Building{
			Name:       rb.Name,
			BuildingID: rb.BuildingID,
			Latitude:   rb.Latitude,
			Longitude:  rb.Longitude,
			Rooms:      []*model.Room{},
		}
		if rb.Code != "" {
			code := rb.Code
			b.Code = &code
		}
		res.Buildings = append(res.Buildings, b)
		ix.add(b)
	}

	// A room id lands in at most one building; raw placement wins.
	placed := make(map[string]bool, len(rawRooms))
	for _, raw := range rawRooms {
		token, number, ok := SplitRoomName(raw.Name)
		if !ok {
			if raw.Name != "" {
				res.Unmatched = append(res.Unmatched, model.UnmatchedRoom{ID: raw.ID, Name: raw.Name})
			}
			continue
		}
		b := ix.lookup(token, token)
		if b == nil {
			res.Unmatched = append(res.Unmatched, model.UnmatchedRoom{ID: raw.ID, Name: raw.Name, RoomNumber: number})
			continue
		}
		b.Rooms = append(b.Rooms, newRoom(b, raw.ID, raw.Name, number, nil))
		placed[raw.ID] = true
	}

	for _, entry := range labeled {
		if placed[entry.ID] {
			appLog.Warn("skipping labeled room already placed in a building", "room_id", entry.ID, "room", entry.Name)
			continue
		}
		if err := ValidateLabel(entry); err != nil {
			res.Rejected++
			appLog.Warn("skipping labeled room with incomplete building", "room_id", entry.ID, "room", entry.Name, "err", err.Error())
			continue
		}
		b := ix.lookup(entry.BuildingCode, entry.BuildingName)
		if b == nil {
			code := entry.BuildingCode
			b = &model.Building{
				Name:      entry.BuildingName,
				Code:      &code,
				Latitude:  *entry.BuildingLatitude,
				Longitude: *entry.BuildingLongitude,
				Rooms:     []*model.Room{},
			}
			res.Buildings = append(res.Buildings, b)
			ix.add(b)
		}
		b.Rooms = append(b.Rooms, newRoom(b, entry.ID, entry.Name, entry.RoomNumber, entry.Availability))
		placed[entry.ID] = true
	}

	return res
}

// SplitRoomName splits "ESJ 0202" into ("ESJ", "0202"). ok is false when the
// name has fewer than two whitespace-separated tokens.
func SplitRoomName(name string) (token, number string, ok bool) {
	fields := strings.Fields(name)
	if len(fields) < 2 {
		return "", "", false
	}
	return fields[0], strings.Join(fields[1:], " "), true
}

// ErrIncompleteLabel is returned for labeled entries missing building data.
var ErrIncompleteLabel = errors.New("incomplete building label")

// ValidateLabel checks that a labeled room names its building completely.
func ValidateLabel(entry model.UnmatchedRoom) error {
	if err := validate.Struct(entry); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			missing := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				missing = append(missing, fe.Field())
			}
			return fmt.Errorf("%w: missing %s", ErrIncompleteLabel, strings.Join(missing, ", "))
		}
		return err
	}
	return nil
}

func newRoom(b *model.Building, id, name, number string, events []model.Event) *model.Room {
	if events == nil {
		events = []model.Event{}
	}
	return &model.Room{
		ID:                id,
		Name:              name,
		RoomNumber:        number,
		BuildingName:      b.Name,
		BuildingCode:      b.Code,
		BuildingLatitude:  b.Latitude,
		BuildingLongitude: b.Longitude,
		Availability:      events,
	}
}
