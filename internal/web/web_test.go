package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classfinder/internal/calendar"
	"classfinder/internal/config"
	"classfinder/internal/model"
	"classfinder/internal/pipeline"
	"classfinder/internal/store"
)

type fakeRefresher struct {
	err    error
	calls  atomic.Int32
	before func()
}

func (f *fakeRefresher) TryRun(_ context.Context, ro pipeline.RunOptions) (pipeline.Result, error) {
	f.calls.Add(1)
	if f.before != nil {
		f.before()
	}
	if f.err != nil {
		return pipeline.Result{}, f.err
	}
	return pipeline.Result{RunID: "run-1", Written: ro.Force, Buildings: 1, Rooms: 2}, nil
}

func strPtr(s string) *string { return &s }

func testDataset() []*model.Building {
	code := strPtr("ESJ")
	return []*model.Building{{
		Name:       "Edward St. John",
		Code:       code,
		BuildingID: "226",
		Rooms: []*model.Room{
			{
				ID: "r1", Name: "ESJ 0202", RoomNumber: "0202", BuildingName: "Edward St. John", BuildingCode: code,
				Availability: []model.Event{{
					Date: "2024-03-04T00:00:00", TimeStart: model.Hour(9.5), TimeEnd: model.Hour(11),
					Status: 1, EventName: "ENGL101", AdditionalDetails: "N/A",
				}},
			},
			{
				ID: "r2", Name: "ESJ 0224", RoomNumber: "0224", BuildingName: "Edward St. John", BuildingCode: code,
				Availability: []model.Event{},
			},
		},
	}}
}

type harness struct {
	srv       *httptest.Server
	path      string
	refresher *fakeRefresher
}

func newHarness(t *testing.T, auth *config.BasicAuthConfig) *harness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "buildings_data.json")
	require.NoError(t, store.WriteJSON(path, testDataset()))

	cal := calendar.Default()
	now := time.Date(2024, time.March, 4, 8, 0, 0, 0, cal.Location)
	refresher := &fakeRefresher{}
	s := NewServer(Options{
		DatasetPath: path,
		Calendar:    cal,
		Refresher:   refresher,
		BasicAuth:   auth,
		DatasetTTL:  time.Hour,
		Now:         func() time.Time { return now },
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &harness{srv: srv, path: path, refresher: refresher}
}

func (h *harness) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(h.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)
	resp, err := http.Get(h.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBuildingsAtPoint(t *testing.T) {
	h := newHarness(t, nil)

	var body buildingsResponse
	status := h.get(t, "/api/buildings?start=2024-03-04T10:00", &body)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body.Buildings, 1)

	b := body.Buildings[0]
	assert.Equal(t, "Available", string(b.Status), "r2 is free")
	require.Len(t, b.Rooms, 2)
	assert.Equal(t, "Unavailable", string(b.Rooms[0].Status))
	assert.Equal(t, "Available", string(b.Rooms[1].Status))
	assert.Nil(t, body.Window.End)
}

func TestBuildingsOnWeekendAreClosed(t *testing.T) {
	h := newHarness(t, nil)

	var body buildingsResponse
	status := h.get(t, "/api/buildings?start=2024-03-09T10:00&end=2024-03-09T12:00", &body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Closed", string(body.Buildings[0].Status))
	assert.NotNil(t, body.Window.End)
}

func TestBuildingsRejectsBadWindow(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, http.StatusBadRequest, h.get(t, "/api/buildings?start=tomorrow", nil))
	assert.Equal(t, http.StatusBadRequest, h.get(t, "/api/buildings?start=2024-03-04T12:00&end=2024-03-04T10:00", nil))
}

func TestBuildingByKey(t *testing.T) {
	h := newHarness(t, nil)

	var b buildingDTO
	require.Equal(t, http.StatusOK, h.get(t, "/api/buildings/esj", &b))
	assert.Equal(t, "Edward St. John", b.Name)

	require.Equal(t, http.StatusOK, h.get(t, "/api/buildings/Edward%20St.%20John", &b))
	assert.Equal(t, http.StatusNotFound, h.get(t, "/api/buildings/XYZ", nil))
}

func TestRoomAvailabilityNow(t *testing.T) {
	h := newHarness(t, nil)

	var body roomAvailabilityResponse
	require.Equal(t, http.StatusOK, h.get(t, "/api/rooms/r1/availability", &body))
	assert.Equal(t, "Available", string(body.Status))
	require.NotNil(t, body.AvailableUntil)
	assert.Equal(t, "9:30 AM", *body.AvailableUntil)
	require.NotNil(t, body.AvailableForHours)
	assert.InDelta(t, 1.5, *body.AvailableForHours, 1e-9)
}

func TestRoomAvailabilityConflict(t *testing.T) {
	h := newHarness(t, nil)

	var body roomAvailabilityResponse
	require.Equal(t, http.StatusOK, h.get(t, "/api/rooms/r1/availability?start=2024-03-04T10:00:00-05:00", &body))
	assert.Equal(t, "Unavailable", string(body.Status))
	assert.Equal(t, "Conflicting Events", body.Reason)
	require.Len(t, body.Conflicts, 1)
	assert.Equal(t, "ENGL101", body.Conflicts[0].EventName)
	assert.Nil(t, body.AvailableUntil)
}

func TestRoomAvailabilityRange(t *testing.T) {
	h := newHarness(t, nil)

	var body roomAvailabilityResponse
	require.Equal(t, http.StatusOK, h.get(t, "/api/rooms/r1/availability?start=2024-03-04T11:00&end=2024-03-04T12:00", &body))
	assert.Equal(t, "Available", string(body.Status), "event ends exactly at range start")
	assert.Nil(t, body.AvailableUntil, "range queries carry no free-until answer")
}

func TestUnknownRoom(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, http.StatusNotFound, h.get(t, "/api/rooms/nope/availability", nil))
	assert.Equal(t, http.StatusNotFound, h.get(t, "/api/rooms/nope/calendar.ics", nil))
}

func TestRoomCalendar(t *testing.T) {
	h := newHarness(t, nil)

	resp, err := http.Get(h.srv.URL + "/api/rooms/r1/calendar.ics?days=7")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/calendar"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	ics := string(raw)
	assert.Contains(t, ics, "BEGIN:VCALENDAR")
	assert.Contains(t, ics, "UID:r1-20240304-0930-1100@classfinder")
	assert.Contains(t, ics, "UID:closure-20240309@classfinder")

	assert.Equal(t, http.StatusBadRequest, h.get(t, "/api/rooms/r1/calendar.ics?days=0", nil))
	assert.Equal(t, http.StatusBadRequest, h.get(t, "/api/rooms/r1/calendar.ics?days=abc", nil))
}

func TestClosures(t *testing.T) {
	h := newHarness(t, nil)

	var body closuresResponse
	require.Equal(t, http.StatusOK, h.get(t, "/api/closures?from=2024-07-01&to=2024-07-07", &body))
	dates := make([]string, 0, len(body.Closures))
	for _, c := range body.Closures {
		dates = append(dates, c.Date)
	}
	assert.Equal(t, []string{"2024-07-04", "2024-07-06", "2024-07-07"}, dates)
	assert.Equal(t, "Independence Day", body.Closures[0].Reason)

	require.Equal(t, http.StatusOK, h.get(t, "/api/closures?to=2024-03-04", &body))
	assert.Equal(t, "2024-03-04", body.From)

	assert.Equal(t, http.StatusBadRequest, h.get(t, "/api/closures?from=07/01/2024", nil))
	assert.Equal(t, http.StatusBadRequest, h.get(t, "/api/closures?from=2024-07-07&to=2024-07-01", nil))
	assert.Equal(t, http.StatusBadRequest, h.get(t, "/api/closures?from=2024-01-01&to=2026-01-01", nil))
}

func postRefresh(t *testing.T, h *harness, user, pass string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/api/refresh", nil)
	require.NoError(t, err)
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRefreshRequiresBasicAuth(t *testing.T) {
	h := newHarness(t, &config.BasicAuthConfig{Username: "admin", Password: "secret"})

	assert.Equal(t, http.StatusUnauthorized, postRefresh(t, h, "", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, postRefresh(t, h, "admin", "wrong").StatusCode)
	assert.Zero(t, h.refresher.calls.Load())

	resp := postRefresh(t, h, "admin", "secret")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body refreshResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "run-1", body.RunID)
	assert.True(t, body.Written, "refresh always forces")
}

func TestRefreshConflict(t *testing.T) {
	h := newHarness(t, nil)
	h.refresher.err = pipeline.ErrRunning
	assert.Equal(t, http.StatusConflict, postRefresh(t, h, "", "").StatusCode)

	h.refresher.err = errors.New("disk full")
	assert.Equal(t, http.StatusInternalServerError, postRefresh(t, h, "", "").StatusCode)
}

func TestRefreshReloadsDataset(t *testing.T) {
	h := newHarness(t, nil)

	var body buildingsResponse
	require.Equal(t, http.StatusOK, h.get(t, "/api/buildings", &body))
	require.Len(t, body.Buildings, 1)

	h.refresher.before = func() {
		next := append(testDataset(), &model.Building{
			Name:  "Xylophone Hall",
			Rooms: []*model.Room{{ID: "x1", Name: "XYZ 100"}},
		})
		assert.NoError(t, store.WriteJSON(h.path, next))
	}
	require.Equal(t, http.StatusOK, postRefresh(t, h, "", "").StatusCode)

	require.Equal(t, http.StatusOK, h.get(t, "/api/buildings", &body))
	assert.Len(t, body.Buildings, 2)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	resp, err := http.Get(h.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
