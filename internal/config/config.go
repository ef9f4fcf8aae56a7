package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"classfinder/internal/store"
)

// PathsConfig locates the ingestion inputs and outputs.
type PathsConfig struct {
	Buildings        string `yaml:"buildings" json:"buildings"`
	Rooms            string `yaml:"rooms" json:"rooms"`
	LabeledUnmatched string `yaml:"labeled_unmatched" json:"labeled_unmatched"`
	UnmatchedToLabel string `yaml:"unmatched_to_label" json:"unmatched_to_label"`
	// UnmatchedCSV is written next to UnmatchedToLabel for spreadsheet
	// labeling. Empty disables the CSV copy.
	UnmatchedCSV string `yaml:"unmatched_csv" json:"unmatched_csv"`
	Dataset      string `yaml:"dataset" json:"dataset"`
}

// IngestConfig controls the schedule refresh batch.
type IngestConfig struct {
	// MaxWorkers bounds concurrent schedule requests.
	MaxWorkers int `yaml:"max_workers" json:"max_workers"`
	// CacheHours is how long a written dataset is considered fresh.
	CacheHours float64 `yaml:"cache_hours" json:"cache_hours"`
	// ForceRefresh bypasses the freshness check.
	ForceRefresh bool `yaml:"force_refresh" json:"force_refresh"`
	// StartDate overrides "today" (YYYY-MM-DD) for the fetch window.
	StartDate string `yaml:"start_date" json:"start_date"`
	// FetchTimeoutSeconds bounds a single room request.
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds" json:"fetch_timeout_seconds"`
	// RequestsPerSecond caps the outbound request rate; 0 disables it.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
}

// ProviderConfig points at the external schedule service.
type ProviderConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// CampusConfig describes daily operating hours (decimal, local time).
type CampusConfig struct {
	OpenHour  float64 `yaml:"open_hour" json:"open_hour"`
	CloseHour float64 `yaml:"close_hour" json:"close_hour"`
}

// MinioConfig enables uploading the dataset to S3-compatible storage.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl" json:"use_ssl"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	Object    string `yaml:"object" json:"object"`
}

// RedisConfig enables copying the dataset into a Redis key.
type RedisConfig struct {
	Addr       string `yaml:"addr" json:"addr"`
	Password   string `yaml:"password" json:"password"`
	DB         int    `yaml:"db" json:"db"`
	Key        string `yaml:"key" json:"key"`
	TTLMinutes int    `yaml:"ttl_minutes" json:"ttl_minutes"`
}

// PublishConfig lists optional dataset mirrors. Nil sections are disabled.
type PublishConfig struct {
	Minio *MinioConfig `yaml:"minio,omitempty" json:"minio,omitempty"`
	Redis *RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// BasicAuthConfig protects mutating HTTP endpoints.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address of the query API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone campus dates and hours are evaluated in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule string (e.g. "0 */6 * * *")
	// for periodic ingestion runs.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Campus   CampusConfig   `yaml:"campus" json:"campus"`
	Paths    PathsConfig    `yaml:"paths" json:"paths"`
	Ingest   IngestConfig   `yaml:"ingest" json:"ingest"`
	Provider ProviderConfig `yaml:"provider" json:"provider"`
	Publish  PublishConfig  `yaml:"publish" json:"publish"`

	// BasicAuth, if non-nil, guards POST /api/refresh.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen     = "127.0.0.1:8080"
	defaultTimezone   = "America/New_York"
	defaultCron       = "0 */6 * * *"
	defaultMaxWorkers = 25
	defaultCacheHours = 6
	defaultTimeoutSec = 10
	defaultBaseURL    = "https://25live.collegenet.com/25live/data/umd/run/availability/availabilitydata.json"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultCron
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Campus.OpenHour == 0 && c.Campus.CloseHour == 0 {
		c.Campus.OpenHour = 7
		c.Campus.CloseHour = 22
	}

	if c.Paths.Buildings == "" {
		c.Paths.Buildings = "data/buildings.json"
	}
	if c.Paths.Rooms == "" {
		c.Paths.Rooms = "data/room_ids.json"
	}
	if c.Paths.LabeledUnmatched == "" {
		c.Paths.LabeledUnmatched = "data/labeled_unmatched_classrooms.json"
	}
	if c.Paths.UnmatchedToLabel == "" {
		c.Paths.UnmatchedToLabel = "data/unmatched_classrooms_to_label.json"
	}
	if c.Paths.Dataset == "" {
		c.Paths.Dataset = "public/buildings_data.json"
	}

	if c.Ingest.MaxWorkers <= 0 {
		c.Ingest.MaxWorkers = defaultMaxWorkers
	}
	if c.Ingest.CacheHours <= 0 {
		c.Ingest.CacheHours = defaultCacheHours
	}
	if c.Ingest.FetchTimeoutSeconds <= 0 {
		c.Ingest.FetchTimeoutSeconds = defaultTimeoutSec
	}
	if c.Ingest.RequestsPerSecond < 0 {
		c.Ingest.RequestsPerSecond = 0
	}

	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = defaultBaseURL
	}
}

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Validate reports settings that cannot be defaulted away.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalid, c.Timezone, err)
	}
	if c.Ingest.StartDate != "" {
		if _, err := time.Parse(time.DateOnly, c.Ingest.StartDate); err != nil {
			return fmt.Errorf("%w: start_date %q is not YYYY-MM-DD", ErrInvalid, c.Ingest.StartDate)
		}
	}
	if c.Campus.OpenHour < 0 || c.Campus.CloseHour > 24 || c.Campus.OpenHour >= c.Campus.CloseHour {
		return fmt.Errorf("%w: campus hours [%v, %v)", ErrInvalid, c.Campus.OpenHour, c.Campus.CloseHour)
	}
	if m := c.Publish.Minio; m != nil && (m.Endpoint == "" || m.Bucket == "") {
		return fmt.Errorf("%w: publish.minio needs endpoint and bucket", ErrInvalid)
	}
	if r := c.Publish.Redis; r != nil && r.Addr == "" {
		return fmt.Errorf("%w: publish.redis needs addr", ErrInvalid)
	}
	return nil
}

// FetchTimeout returns the per-room request timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Ingest.FetchTimeoutSeconds) * time.Second
}

// CacheMaxAge returns the dataset freshness threshold.
func (c *Config) CacheMaxAge() time.Duration {
	return time.Duration(c.Ingest.CacheHours * float64(time.Hour))
}

// Environment overrides read by Load.
const (
	EnvMaxWorkers   = "AVAIL_MAX_WORKERS"
	EnvCacheHours   = "AVAIL_CACHE_HOURS"
	EnvForceRefresh = "AVAIL_FORCE_REFRESH"
	EnvStartDate    = "AVAIL_START_DATE"
	EnvLogLevel     = "CLASSFINDER_LOG_LEVEL"
)

// ApplyEnv overlays environment overrides onto c. Values that do not parse
// are ignored. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvMaxWorkers); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Ingest.MaxWorkers = n
		}
	}
	if v, ok := lookup(EnvCacheHours); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.Ingest.CacheHours = f
		}
	}
	if v, ok := lookup(EnvForceRefresh); ok {
		c.Ingest.ForceRefresh = v == "1"
	}
	if v, ok := lookup(EnvStartDate); ok && v != "" {
		c.Ingest.StartDate = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
}

// Load reads the YAML config at path, then applies environment overrides
// (including a .env file in the working directory, if present). A missing
// file is created from DefaultConfig.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	// A missing .env file is the normal case.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				cfg.ApplyEnv(os.LookupEnv)
				return cfg, err
			}
			cfg.ApplyEnv(os.LookupEnv)
			return cfg, cfg.Validate()
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	cfg.ApplyEnv(os.LookupEnv)

	return &cfg, cfg.Validate()
}

// Save writes cfg as YAML to path with mode 0600, creating the parent
// directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return store.WriteFileAtomic(path, data, 0o600)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
