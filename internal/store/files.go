// Package store persists the ingestion inputs and outputs: source metadata,
// the labeling side files and the merged dataset.
package store

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"

	"classfinder/internal/model"
)

// Files names every file the pipeline reads or writes.
type Files struct {
	Buildings        string
	Rooms            string
	LabeledUnmatched string
	UnmatchedToLabel string
	// UnmatchedCSV is a spreadsheet-friendly copy of UnmatchedToLabel.
	// Empty disables it.
	UnmatchedCSV string
	Dataset      string
}

// Exists reports whether path names an existing file.
func Exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// FreshEnough reports whether path was written less than maxAge before now.
// Missing files are never fresh.
func FreshEnough(path string, maxAge time.Duration, now time.Time) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return now.Sub(info.ModTime()) < maxAge
}

// ReadJSON decodes the JSON file at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// WriteJSON encodes v with indentation and writes it atomically.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0o644)
}

// WriteFileAtomic writes data to a temp file in path's directory and
// renames it over path, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	if path == "" {
		return errors.New("path is empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Remove deletes path; a missing file is not an error.
func Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// LoadDataset reads the persisted dataset. A missing file yields an empty
// dataset so readers degrade to "No Data" instead of failing.
func LoadDataset(path string) ([]*model.Building, error) {
	var buildings []*model.Building
	if err := ReadJSON(path, &buildings); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []*model.Building{}, nil
		}
		return nil, err
	}
	if buildings == nil {
		buildings = []*model.Building{}
	}
	return buildings, nil
}
