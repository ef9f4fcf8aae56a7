package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"classfinder/internal/availability"
	"classfinder/internal/calendar"
	"classfinder/internal/ics"
	appLog "classfinder/internal/log"
	"classfinder/internal/model"
	"classfinder/internal/pipeline"
)

const (
	defaultCalendarDays = 7
	maxCalendarDays     = 62
	defaultClosureDays  = 30
	maxClosureDays      = 366
)

// Accepted layouts for start/end; zone-less values are campus-local.
var timeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

type windowDTO struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

type roomStatusDTO struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	RoomNumber string              `json:"room_number"`
	Status     availability.Status `json:"status"`
}

type buildingDTO struct {
	Name       string              `json:"name"`
	Code       *string             `json:"code"`
	BuildingID string              `json:"building_id"`
	Latitude   float64             `json:"latitude"`
	Longitude  float64             `json:"longitude"`
	Status     availability.Status `json:"status"`
	Reason     string              `json:"reason"`
	Rooms      []roomStatusDTO     `json:"rooms"`
}

type buildingsResponse struct {
	Window    windowDTO     `json:"window"`
	Buildings []buildingDTO `json:"buildings"`
}

type roomAvailabilityResponse struct {
	RoomID            string              `json:"room_id"`
	Name              string              `json:"name"`
	BuildingName      string              `json:"building_name"`
	BuildingCode      *string             `json:"building_code"`
	Window            windowDTO           `json:"window"`
	Status            availability.Status `json:"status"`
	Reason            string              `json:"reason"`
	Conflicts         []model.Event       `json:"conflicts,omitempty"`
	AvailableUntil    *string             `json:"available_until,omitempty"`
	AvailableForHours *float64            `json:"available_for_hours,omitempty"`
}

type closuresResponse struct {
	From     string             `json:"from"`
	To       string             `json:"to"`
	Closures []calendar.Closure `json:"closures"`
}

type refreshResponse struct {
	RunID         string `json:"run_id"`
	StartDate     string `json:"start_date,omitempty"`
	Buildings     int    `json:"buildings"`
	Rooms         int    `json:"rooms"`
	Unmatched     int    `json:"unmatched"`
	Promoted      int    `json:"promoted"`
	FetchFailures int    `json:"fetch_failures"`
	Written       bool   `json:"written"`
	NoRooms       bool   `json:"no_rooms"`
	Duration      string `json:"duration"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// GET /api/buildings?start=&end=
func (s *Server) handleBuildings(w http.ResponseWriter, r *http.Request) {
	win, dto, err := s.parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, ok := s.snapshotOrError(w)
	if !ok {
		return
	}

	out := make([]buildingDTO, 0, len(snap.buildings))
	for _, b := range snap.buildings {
		out = append(out, s.buildingStatus(b, win))
	}
	writeJSON(w, http.StatusOK, buildingsResponse{Window: dto, Buildings: out})
}

// GET /api/buildings/{key}?start=&end= where key is a building code or name.
func (s *Server) handleBuilding(w http.ResponseWriter, r *http.Request) {
	win, _, err := s.parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, ok := s.snapshotOrError(w)
	if !ok {
		return
	}

	key := chi.URLParam(r, "key")
	for _, b := range snap.buildings {
		if strings.EqualFold(b.CodeString(), key) || strings.EqualFold(b.Name, key) {
			writeJSON(w, http.StatusOK, s.buildingStatus(b, win))
			return
		}
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("building %q not found", key))
}

// GET /api/rooms/{id}/availability?start=&end=
func (s *Server) handleRoomAvailability(w http.ResponseWriter, r *http.Request) {
	win, dto, err := s.parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	room, ok := s.roomOrError(w, r)
	if !ok {
		return
	}

	v := s.engine.Explain(room, win)
	resp := roomAvailabilityResponse{
		RoomID:       room.ID,
		Name:         room.Name,
		BuildingName: room.BuildingName,
		BuildingCode: room.BuildingCode,
		Window:       dto,
		Status:       v.Status,
		Reason:       v.Reason,
		Conflicts:    v.Conflicts,
	}
	if win.IsPoint() {
		if until, ok := s.engine.AvailableUntil(room, win.Start); ok {
			hours := s.engine.AvailableForHours(room, win.Start)
			resp.AvailableUntil = &until
			resp.AvailableForHours = &hours
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/rooms/{id}/calendar.ics?days=
func (s *Server) handleRoomCalendar(w http.ResponseWriter, r *http.Request) {
	days := defaultCalendarDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxCalendarDays {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("days must be between 1 and %d", maxCalendarDays))
			return
		}
		days = n
	}
	room, ok := s.roomOrError(w, r)
	if !ok {
		return
	}

	now := s.opts.Now()
	body, err := ics.RoomCalendar(room, ics.ExportConfig{
		Calendar: s.opts.Calendar,
		From:     now,
		To:       now.AddDate(0, 0, days-1),
		Stamp:    now,
	})
	if err != nil {
		appLog.Error("ics export failed", err, "room_id", room.ID)
		writeError(w, http.StatusInternalServerError, "failed to render calendar")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s.ics"`, room.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// GET /api/closures?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *Server) handleClosures(w http.ResponseWriter, r *http.Request) {
	cal := s.opts.Calendar
	q := r.URL.Query()

	now := cal.Local(s.opts.Now())
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, cal.Location)
	if raw := q.Get("from"); raw != "" {
		t, err := time.ParseInLocation(time.DateOnly, raw, cal.Location)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		from = t
	}
	to := from.AddDate(0, 0, defaultClosureDays)
	if raw := q.Get("to"); raw != "" {
		t, err := time.ParseInLocation(time.DateOnly, raw, cal.Location)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
		to = t
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to is before from")
		return
	}
	if to.After(from.AddDate(0, 0, maxClosureDays)) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("range exceeds %d days", maxClosureDays))
		return
	}

	closures, err := cal.Closures(from, to)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, closuresResponse{
		From:     cal.DateString(from),
		To:       cal.DateString(to),
		Closures: closures,
	})
}

// POST /api/refresh runs a forced ingestion synchronously.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	// The run outlives a client that hangs up.
	ctx := context.WithoutCancel(r.Context())

	res, err := s.opts.Refresher.TryRun(ctx, pipeline.RunOptions{Force: true})
	switch {
	case errors.Is(err, pipeline.ErrRunning):
		writeError(w, http.StatusConflict, "ingestion already running")
		return
	case errors.Is(err, pipeline.ErrSourceMissing):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		appLog.Error("refresh failed", err, "run_id", res.RunID)
		writeError(w, http.StatusInternalServerError, "refresh failed")
		return
	}

	s.invalidate()
	writeJSON(w, http.StatusOK, refreshResponse{
		RunID:         res.RunID,
		StartDate:     res.StartDate,
		Buildings:     res.Buildings,
		Rooms:         res.Rooms,
		Unmatched:     res.Unmatched,
		Promoted:      res.Promoted,
		FetchFailures: res.FetchFailures,
		Written:       res.Written,
		NoRooms:       res.NoRooms,
		Duration:      res.Duration.String(),
	})
}

func (s *Server) buildingStatus(b *model.Building, win availability.Window) buildingDTO {
	v := s.engine.ExplainBuilding(b.Rooms, win)
	rooms := make([]roomStatusDTO, 0, len(b.Rooms))
	for _, room := range b.Rooms {
		rooms = append(rooms, roomStatusDTO{
			ID:         room.ID,
			Name:       room.Name,
			RoomNumber: room.RoomNumber,
			Status:     s.engine.Room(room, win),
		})
	}
	return buildingDTO{
		Name:       b.Name,
		Code:       b.Code,
		BuildingID: b.BuildingID,
		Latitude:   b.Latitude,
		Longitude:  b.Longitude,
		Status:     v.Status,
		Reason:     v.Reason,
		Rooms:      rooms,
	}
}

func (s *Server) snapshotOrError(w http.ResponseWriter) (*snapshot, bool) {
	snap, err := s.dataset()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "dataset unavailable")
		return nil, false
	}
	return snap, true
}

func (s *Server) roomOrError(w http.ResponseWriter, r *http.Request) (*model.Room, bool) {
	snap, ok := s.snapshotOrError(w)
	if !ok {
		return nil, false
	}
	id := chi.URLParam(r, "id")
	room, found := snap.rooms[id]
	if !found {
		writeError(w, http.StatusNotFound, fmt.Sprintf("room %q not found", id))
		return nil, false
	}
	return room, true
}

// parseWindow reads start/end. Missing start means now; missing end makes
// a point query.
func (s *Server) parseWindow(r *http.Request) (availability.Window, windowDTO, error) {
	q := r.URL.Query()
	start := s.opts.Now()
	if raw := q.Get("start"); raw != "" {
		t, err := s.parseTime(raw)
		if err != nil {
			return availability.Window{}, windowDTO{}, fmt.Errorf("invalid start: %w", err)
		}
		start = t
	}
	start = s.opts.Calendar.Local(start)

	raw := q.Get("end")
	if raw == "" {
		return availability.Point(start), windowDTO{Start: start}, nil
	}
	end, err := s.parseTime(raw)
	if err != nil {
		return availability.Window{}, windowDTO{}, fmt.Errorf("invalid end: %w", err)
	}
	end = s.opts.Calendar.Local(end)
	if end.Before(start) {
		return availability.Window{}, windowDTO{}, errors.New("end is before start")
	}
	return availability.Range(start, end), windowDTO{Start: start, End: &end}, nil
}

func (s *Server) parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, raw, s.opts.Calendar.Location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not RFC3339 or YYYY-MM-DDTHH:MM", raw)
}
