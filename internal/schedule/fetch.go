package schedule

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	appLog "classfinder/internal/log"
	"classfinder/internal/metrics"
	"classfinder/internal/model"
)

// DefaultBaseURL is the 25Live availability endpoint for the campus.
const DefaultBaseURL = "https://25live.collegenet.com/25live/data/umd/run/availability/availabilitydata.json"

// DefaultTimeout bounds a single room request.
const DefaultTimeout = 10 * time.Second

// Options configures a Fetcher. Zero values select defaults.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond caps outbound request rate across all workers.
	// 0 disables the limiter.
	RequestsPerSecond float64
	Client            *http.Client
}

// Fetcher retrieves room schedules from the provider.
type Fetcher struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
}

// NewFetcher creates a Fetcher from opts.
func NewFetcher(opts Options) *Fetcher {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	f := &Fetcher{client: client, baseURL: opts.BaseURL}
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return f
}

// RequestURL builds the provider URL for one room and start date.
func (f *Fetcher) RequestURL(roomID, startDate string) string {
	params := url.Values{}
	params.Set("obj_cache_accl", "0")
	params.Set("start_dt", startDate+"T00:00:00")
	params.Set("comptype", "availability_daily")
	params.Set("compsubject", "location")
	params.Set("page_size", "100")
	params.Set("space_id", roomID)
	params.Set("include", "closed blackouts pending related empty")
	params.Set("caller", "pro-AvailService.getData")
	return f.baseURL + "?" + params.Encode()
}

// Fetch retrieves and normalizes the schedule of roomID starting at
// startDate (YYYY-MM-DD).
func (f *Fetcher) Fetch(ctx context.Context, roomID, startDate string) ([]model.Event, error) {
	if roomID == "" {
		return nil, errors.New("room id is empty")
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.RequestURL(roomID, startDate), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode availability: %w", err)
	}
	return Normalize(payload), nil
}

// FetchInto fills room's schedule. A failed fetch leaves the room with an
// empty schedule and is only logged; it reports whether the fetch
// succeeded.
func (f *Fetcher) FetchInto(ctx context.Context, room *model.Room, startDate string) bool {
	events, err := f.Fetch(ctx, room.ID, startDate)
	if err != nil {
		appLog.Warn("availability fetch failed", "room_id", room.ID, "room", room.Name, "err", err.Error())
		metrics.FetchTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		room.Availability = []model.Event{}
		return false
	}
	metrics.FetchTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	room.Availability = events
	return true
}
