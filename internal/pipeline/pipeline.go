// Package pipeline runs one ingestion batch: reconcile metadata, fetch every
// room's schedule, persist the merged dataset.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"classfinder/internal/calendar"
	appLog "classfinder/internal/log"
	"classfinder/internal/metrics"
	"classfinder/internal/model"
	"classfinder/internal/pool"
	"classfinder/internal/reconcile"
	"classfinder/internal/store"
)

var (
	// ErrSourceMissing means a required metadata file is absent. The run
	// produced no dataset.
	ErrSourceMissing = errors.New("source metadata missing")
	// ErrRunning is returned by TryRun while another run is in progress.
	ErrRunning = errors.New("ingestion already running")
)

// ScheduleFetcher fills a room's schedule. It must not fail: on error the
// room gets an empty schedule and false is returned.
type ScheduleFetcher interface {
	FetchInto(ctx context.Context, room *model.Room, startDate string) bool
}

// Options configures a Pipeline.
type Options struct {
	Files      store.Files
	Fetcher    ScheduleFetcher
	Calendar   *calendar.Calendar
	MaxWorkers int
	// CacheMaxAge is the dataset freshness threshold.
	CacheMaxAge time.Duration
	// StartDate overrides today's campus date (YYYY-MM-DD).
	StartDate  string
	Publishers []store.Publisher
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// RunOptions are per-run switches.
type RunOptions struct {
	Force bool
}

// Result summarizes a run.
type Result struct {
	RunID         string
	Skipped       bool
	NoRooms       bool
	StartDate     string
	Buildings     int
	Rooms         int
	Unmatched     int
	Rejected      int
	Promoted      int
	FetchFailures int
	Written       bool
	Duration      time.Duration
}

// Pipeline runs ingestion batches. Only one batch runs at a time.
type Pipeline struct {
	opts Options
	mu   sync.Mutex
}

// New returns a Pipeline. Missing calendar and clock fall back to defaults.
func New(opts Options) *Pipeline {
	if opts.Calendar == nil {
		opts.Calendar = calendar.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = pool.DefaultLimit
	}
	return &Pipeline{opts: opts}
}

// Run executes one batch, waiting for any batch already in progress.
func (p *Pipeline) Run(ctx context.Context, ro RunOptions) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run(ctx, ro)
}

// TryRun executes one batch unless another is in progress.
func (p *Pipeline) TryRun(ctx context.Context, ro RunOptions) (Result, error) {
	if !p.mu.TryLock() {
		return Result{}, ErrRunning
	}
	defer p.mu.Unlock()
	return p.run(ctx, ro)
}

func (p *Pipeline) run(ctx context.Context, ro RunOptions) (Result, error) {
	files := p.opts.Files
	started := p.opts.Now()
	res := Result{RunID: uuid.NewString()}

	if !ro.Force && store.FreshEnough(files.Dataset, p.opts.CacheMaxAge, started) {
		appLog.Info("dataset is fresh; skipping refresh", "run_id", res.RunID, "path", files.Dataset, "max_age", p.opts.CacheMaxAge.String())
		res.Skipped = true
		return res, nil
	}

	for _, path := range []string{files.Buildings, files.Rooms} {
		if !store.Exists(path) {
			err := fmt.Errorf("%w: %s", ErrSourceMissing, path)
			appLog.Error("skipping data refresh", err, "run_id", res.RunID)
			return res, err
		}
	}

	appLog.Info("loading building metadata", "run_id", res.RunID)
	var rawBuildings []model.RawBuilding
	if err := store.ReadJSON(files.Buildings, &rawBuildings); err != nil {
		return res, fmt.Errorf("read %s: %w", files.Buildings, err)
	}
	var rawRooms []model.RawRoom
	if err := store.ReadJSON(files.Rooms, &rawRooms); err != nil {
		return res, fmt.Errorf("read %s: %w", files.Rooms, err)
	}

	labeled, promoted, err := loadLabeled(files, res.RunID)
	if err != nil {
		return res, err
	}
	res.Promoted = promoted

	rec := reconcile.Reconcile(rawBuildings, rawRooms, labeled)
	res.Unmatched = len(rec.Unmatched)
	res.Rejected = rec.Rejected
	metrics.UnmatchedRooms.Set(float64(res.Unmatched))

	if promoted == 0 && len(rec.Unmatched) > 0 {
		exportUnmatched(files, rec.Unmatched, res.RunID)
	}

	rooms := rec.Rooms()
	res.Rooms = len(rooms)
	if len(rooms) == 0 {
		appLog.Warn("no classrooms found; skipping data refresh", "run_id", res.RunID)
		res.NoRooms = true
		return res, nil
	}

	startDate := p.opts.StartDate
	if startDate == "" {
		startDate = p.opts.Calendar.Today(started)
	}
	res.StartDate = startDate

	appLog.Info("fetching availability", "run_id", res.RunID, "rooms", len(rooms), "start_date", startDate, "max_workers", p.opts.MaxWorkers)

	progress := &pool.Progress{Label: "availability fetch", Total: len(rooms), Every: 25}
	var failMu sync.Mutex
	pool.Run(ctx, rooms, p.opts.MaxWorkers, func(ctx context.Context, room *model.Room) {
		if !p.opts.Fetcher.FetchInto(ctx, room, startDate) {
			failMu.Lock()
			res.FetchFailures++
			failMu.Unlock()
		}
		progress.Done()
	})

	buildings := nonEmpty(rec.Buildings)
	res.Buildings = len(buildings)

	data, err := json.MarshalIndent(buildings, "", "  ")
	if err != nil {
		return res, fmt.Errorf("encode dataset: %w", err)
	}
	if err := store.WriteFileAtomic(files.Dataset, data, 0o644); err != nil {
		return res, fmt.Errorf("write dataset: %w", err)
	}
	res.Written = true
	res.Duration = p.opts.Now().Sub(started)

	metrics.RunDuration.Observe(res.Duration.Seconds())
	metrics.LastSuccess.Set(float64(p.opts.Now().Unix()))
	metrics.DatasetBuildings.Set(float64(res.Buildings))
	metrics.DatasetRooms.Set(float64(res.Rooms))

	appLog.Info("wrote dataset", "run_id", res.RunID, "path", files.Dataset,
		"buildings", res.Buildings, "rooms", res.Rooms, "fetch_failures", res.FetchFailures,
		"duration", res.Duration.String())

	for _, pub := range p.opts.Publishers {
		if err := pub.Publish(ctx, data); err != nil {
			appLog.Error("dataset publish failed", err, "run_id", res.RunID, "publisher", pub.Name())
			continue
		}
		appLog.Info("dataset published", "run_id", res.RunID, "publisher", pub.Name())
	}

	return res, nil
}

// nonEmpty drops buildings without rooms, keeping order.
func nonEmpty(buildings []*model.Building) []*model.Building {
	out := make([]*model.Building, 0, len(buildings))
	for _, b := range buildings {
		if len(b.Rooms) > 0 {
			out = append(out, b)
		}
	}
	return out
}
