// Package web serves the availability query API over the last written
// dataset.
package web

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classfinder/internal/availability"
	"classfinder/internal/calendar"
	"classfinder/internal/config"
	appLog "classfinder/internal/log"
	"classfinder/internal/model"
	"classfinder/internal/pipeline"
	"classfinder/internal/store"
)

// DefaultDatasetTTL is how long a loaded dataset snapshot is reused.
const DefaultDatasetTTL = 30 * time.Second

// Refresher triggers an ingestion run. *pipeline.Pipeline satisfies it.
type Refresher interface {
	TryRun(ctx context.Context, ro pipeline.RunOptions) (pipeline.Result, error)
}

// Options configures a Server.
type Options struct {
	DatasetPath string
	Calendar    *calendar.Calendar
	// Refresher backs POST /api/refresh. Nil disables the endpoint.
	Refresher Refresher
	// BasicAuth guards POST /api/refresh when both fields are set.
	BasicAuth  *config.BasicAuthConfig
	DatasetTTL time.Duration
	Now        func() time.Time
}

// Server provides the HTTP query API.
type Server struct {
	opts   Options
	engine *availability.Engine
	router chi.Router

	// In-memory dataset snapshot so requests do not re-read the file.
	dataMu sync.RWMutex
	data   *snapshot
}

type snapshot struct {
	buildings []*model.Building
	rooms     map[string]*model.Room
	loadedAt  time.Time
}

// NewServer constructs a Server.
func NewServer(opts Options) *Server {
	if opts.Calendar == nil {
		opts.Calendar = calendar.Default()
	}
	if opts.DatasetTTL <= 0 {
		opts.DatasetTTL = DefaultDatasetTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		opts:   opts,
		engine: availability.New(opts.Calendar),
	}
	s.router = s.routes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/buildings", s.handleBuildings)
		r.Get("/buildings/{key}", s.handleBuilding)
		r.Get("/rooms/{id}/availability", s.handleRoomAvailability)
		r.Get("/rooms/{id}/calendar.ics", s.handleRoomCalendar)
		r.Get("/closures", s.handleClosures)
		if s.opts.Refresher != nil {
			r.With(s.basicAuth).Post("/refresh", s.handleRefresh)
		}
	})
	return r
}

func (s *Server) basicAuthEnabled() bool {
	ba := s.opts.BasicAuth
	return ba != nil && ba.Username != "" && ba.Password != ""
}

// basicAuth wraps mutating handlers. Without credentials configured it is a
// pass-through.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	if !s.basicAuthEnabled() {
		return next
	}
	username := s.opts.BasicAuth.Username
	password := s.opts.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="classfinder", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(started).String())
	})
}

// dataset returns the cached snapshot, reloading it once the TTL passed.
// A failed reload keeps serving the previous snapshot.
func (s *Server) dataset() (*snapshot, error) {
	now := s.opts.Now()

	s.dataMu.RLock()
	snap := s.data
	s.dataMu.RUnlock()
	if snap != nil && now.Sub(snap.loadedAt) < s.opts.DatasetTTL {
		return snap, nil
	}

	buildings, err := store.LoadDataset(s.opts.DatasetPath)
	if err != nil {
		appLog.Error("dataset reload failed", err, "path", s.opts.DatasetPath)
		if snap != nil {
			return snap, nil
		}
		return nil, err
	}

	fresh := &snapshot{
		buildings: buildings,
		rooms:     make(map[string]*model.Room),
		loadedAt:  now,
	}
	for _, b := range buildings {
		for _, r := range b.Rooms {
			fresh.rooms[r.ID] = r
		}
	}

	s.dataMu.Lock()
	s.data = fresh
	s.dataMu.Unlock()
	return fresh, nil
}

// invalidate drops the snapshot so the next request reloads the file.
func (s *Server) invalidate() {
	s.dataMu.Lock()
	s.data = nil
	s.dataMu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
