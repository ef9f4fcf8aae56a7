package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classfinder/internal/model"
)

func TestWriteJSONIsAtomicAndReadable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "data.json")

	code := "ESJ"
	in := []*model.Building{{
		Name: "ESJ", Code: &code,
		Rooms: []*model.Room{{ID: "1", Availability: []model.Event{{Date: "2024-03-04", TimeStart: model.Hour(9.5), Status: 1}}}},
	}}
	require.NoError(t, WriteJSON(path, in))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file is cleaned up")

	out, err := LoadDataset(path)
	require.NoError(t, err)
	require.Len(t, out, 1)
	ev := out[0].Rooms[0].Availability[0]
	assert.Equal(t, model.Hour(9.5), ev.TimeStart)
	assert.False(t, ev.TimeEnd.Valid, "N/A survives a round trip")
}

func TestLoadDatasetMissingFile(t *testing.T) {
	out, err := LoadDataset(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestFreshEnough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	now := time.Now()

	assert.False(t, FreshEnough(path, time.Hour, now), "missing file is stale")

	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))
	assert.True(t, FreshEnough(path, time.Hour, now))

	old := now.Add(-7 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))
	assert.False(t, FreshEnough(path, 6*time.Hour, now))
}

func TestRemoveMissingFile(t *testing.T) {
	assert.NoError(t, Remove(filepath.Join(t.TempDir(), "nope.json")))
}

func TestUnmatchedCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unmatched.csv")
	rooms := []model.UnmatchedRoom{
		{ID: "4", Name: "XYZ 1000", RoomNumber: "1000"},
		{ID: "5", Name: "Stamp"},
	}
	require.NoError(t, WriteUnmatchedCSV(path, rooms))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "building_latitude")

	back, err := ReadUnmatchedCSV(data)
	require.NoError(t, err)
	require.Len(t, back, 2)
	assert.Equal(t, "XYZ 1000", back[0].Name)
	assert.Nil(t, back[0].BuildingLatitude, "blank cells stay missing")
}
