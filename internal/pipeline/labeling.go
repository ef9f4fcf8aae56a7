package pipeline

import (
	"os"

	appLog "classfinder/internal/log"
	"classfinder/internal/model"
	"classfinder/internal/reconcile"
	"classfinder/internal/store"
)

// loadLabeled returns the hand-labeled rooms to merge this run.
//
// The labeled file wins when present. Otherwise a previously exported
// to-label file (JSON, or its CSV copy) is checked: entries whose building
// fields were filled in are promoted into a new labeled file and the
// consumed to-label files are deleted. promoted is the number of entries
// moved this way.
func loadLabeled(files store.Files, runID string) (labeled []model.UnmatchedRoom, promoted int, err error) {
	if store.Exists(files.LabeledUnmatched) {
		if err := store.ReadJSON(files.LabeledUnmatched, &labeled); err != nil {
			appLog.Error("ignoring unreadable labeled rooms file", err, "run_id", runID, "path", files.LabeledUnmatched)
			return nil, 0, nil
		}
		return labeled, 0, nil
	}

	candidates, source, ok := readToLabel(files, runID)
	if !ok {
		return nil, 0, nil
	}

	qualifying := make([]model.UnmatchedRoom, 0, len(candidates))
	for _, c := range candidates {
		if err := reconcile.ValidateLabel(c); err != nil {
			appLog.Debug("room still needs labeling", "run_id", runID, "room_id", c.ID, "room", c.Name)
			continue
		}
		qualifying = append(qualifying, c)
	}
	if len(qualifying) == 0 {
		return nil, 0, nil
	}

	if err := store.WriteJSON(files.LabeledUnmatched, qualifying); err != nil {
		return nil, 0, err
	}
	for _, path := range []string{files.UnmatchedToLabel, files.UnmatchedCSV} {
		if path == "" {
			continue
		}
		if err := store.Remove(path); err != nil {
			appLog.Error("failed to remove consumed to-label file", err, "run_id", runID, "path", path)
		}
	}
	appLog.Info("promoted labeled rooms", "run_id", runID, "count", len(qualifying), "from", source, "to", files.LabeledUnmatched)
	return qualifying, len(qualifying), nil
}

// readToLabel reads the to-label JSON file, falling back to its CSV copy.
func readToLabel(files store.Files, runID string) ([]model.UnmatchedRoom, string, bool) {
	if store.Exists(files.UnmatchedToLabel) {
		var rooms []model.UnmatchedRoom
		if err := store.ReadJSON(files.UnmatchedToLabel, &rooms); err != nil {
			appLog.Error("ignoring unreadable to-label file", err, "run_id", runID, "path", files.UnmatchedToLabel)
			return nil, "", false
		}
		return rooms, files.UnmatchedToLabel, true
	}
	if store.Exists(files.UnmatchedCSV) {
		data, err := os.ReadFile(files.UnmatchedCSV)
		if err != nil {
			appLog.Error("ignoring unreadable to-label csv", err, "run_id", runID, "path", files.UnmatchedCSV)
			return nil, "", false
		}
		rooms, err := store.ReadUnmatchedCSV(data)
		if err != nil {
			appLog.Error("ignoring unreadable to-label csv", err, "run_id", runID, "path", files.UnmatchedCSV)
			return nil, "", false
		}
		return rooms, files.UnmatchedCSV, true
	}
	return nil, "", false
}

// exportUnmatched writes this run's unmatched rooms for hand labeling.
// Failures are logged; they never stop the run.
func exportUnmatched(files store.Files, unmatched []model.UnmatchedRoom, runID string) {
	if err := store.WriteJSON(files.UnmatchedToLabel, unmatched); err != nil {
		appLog.Error("failed to write unmatched rooms", err, "run_id", runID, "path", files.UnmatchedToLabel)
		return
	}
	if files.UnmatchedCSV != "" {
		if err := store.WriteUnmatchedCSV(files.UnmatchedCSV, unmatched); err != nil {
			appLog.Error("failed to write unmatched rooms csv", err, "run_id", runID, "path", files.UnmatchedCSV)
		}
	}
	appLog.Warn("rooms need building labels", "run_id", runID, "count", len(unmatched), "path", files.UnmatchedToLabel)
}
