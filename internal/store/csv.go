package store

import (
	"github.com/gocarina/gocsv"

	"classfinder/internal/model"
)

// WriteUnmatchedCSV exports unmatched rooms with empty building columns for
// hand labeling in a spreadsheet.
func WriteUnmatchedCSV(path string, rooms []model.UnmatchedRoom) error {
	if rooms == nil {
		rooms = []model.UnmatchedRoom{}
	}
	out, err := gocsv.MarshalBytes(&rooms)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, out, 0o644)
}

// ReadUnmatchedCSV loads a labeled CSV produced from WriteUnmatchedCSV.
// Empty coordinate cells decode as missing.
func ReadUnmatchedCSV(data []byte) ([]model.UnmatchedRoom, error) {
	var rows []model.UnmatchedRoom
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
