package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"classfinder/internal/calendar"
	"classfinder/internal/config"
	appLog "classfinder/internal/log"
	"classfinder/internal/pipeline"
	"classfinder/internal/schedule"
	"classfinder/internal/store"
	"classfinder/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	force      bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	defer appLog.Sync()

	appLog.Info("classfinder starting", "version", "0.1.0")

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	force := flags.force || conf.Ingest.ForceRefresh

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"max_workers", conf.Ingest.MaxWorkers,
		"cache_hours", conf.Ingest.CacheHours,
		"start_date", conf.Ingest.StartDate,
		"force", force,
		"once", flags.once,
	)

	cal, err := calendar.New(conf.Timezone, conf.Campus.OpenHour, conf.Campus.CloseHour)
	if err != nil {
		appLog.Error("invalid campus calendar", err, "timezone", conf.Timezone)
		os.Exit(1)
	}

	p := pipeline.New(pipeline.Options{
		Files: store.Files{
			Buildings:        conf.Paths.Buildings,
			Rooms:            conf.Paths.Rooms,
			LabeledUnmatched: conf.Paths.LabeledUnmatched,
			UnmatchedToLabel: conf.Paths.UnmatchedToLabel,
			UnmatchedCSV:     conf.Paths.UnmatchedCSV,
			Dataset:          conf.Paths.Dataset,
		},
		Fetcher: schedule.NewFetcher(schedule.Options{
			BaseURL:           conf.Provider.BaseURL,
			Timeout:           conf.FetchTimeout(),
			RequestsPerSecond: conf.Ingest.RequestsPerSecond,
		}),
		Calendar:    cal,
		MaxWorkers:  conf.Ingest.MaxWorkers,
		CacheMaxAge: conf.CacheMaxAge(),
		StartDate:   conf.Ingest.StartDate,
		Publishers:  publishers(conf),
	})

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.once {
		_, err := p.Run(ctx, pipeline.RunOptions{Force: force})
		if code := onceExitCode(err); code != 0 {
			appLog.Sync()
			os.Exit(code)
		}
		return
	}

	runScheduled := func(reason string, force bool) {
		res, err := p.TryRun(ctx, pipeline.RunOptions{Force: force})
		switch {
		case errors.Is(err, pipeline.ErrRunning):
			appLog.Warn("previous ingestion still running; skipping", "trigger", reason)
		case err != nil:
			appLog.Error("ingestion failed", err, "trigger", reason, "run_id", res.RunID)
		}
	}

	c := cron.New()
	if _, err := c.AddFunc(conf.RefreshCron, func() { runScheduled("cron", false) }); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	c.Start()

	go runScheduled("startup", force)

	srv := &http.Server{
		Addr: conf.Listen,
		Handler: web.NewServer(web.Options{
			DatasetPath: conf.Paths.Dataset,
			Calendar:    cal,
			Refresher:   p,
			BasicAuth:   conf.BasicAuth,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("http server failed", err, "listen", conf.Listen)
			stop()
		}
	}()

	<-ctx.Done()
	appLog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("http shutdown failed", err)
	}

	// Wait for a running cron job to finish.
	<-c.Stop().Done()
	appLog.Info("classfinder exiting")
}

// onceExitCode logs the outcome of a -once run and maps it to a process exit
// code. Missing source files are reported but leave the exit status clean.
func onceExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, pipeline.ErrSourceMissing):
		appLog.Warn("ingestion skipped: source files missing", "error", err.Error())
		return 0
	default:
		appLog.Error("ingestion failed", err)
		return 1
	}
}

// publishers builds the optional dataset mirrors from config. A publisher
// that cannot be constructed is logged and left out.
func publishers(conf *config.Config) []store.Publisher {
	var out []store.Publisher
	if m := conf.Publish.Minio; m != nil {
		pub, err := store.NewMinioPublisher(store.MinioOptions{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			UseSSL:    m.UseSSL,
			Bucket:    m.Bucket,
			Object:    m.Object,
		})
		if err != nil {
			appLog.Error("minio publisher disabled", err, "endpoint", m.Endpoint)
		} else {
			out = append(out, pub)
		}
	}
	if r := conf.Publish.Redis; r != nil {
		out = append(out, store.NewRedisPublisher(store.RedisOptions{
			Addr:     r.Addr,
			Password: r.Password,
			DB:       r.DB,
			Key:      r.Key,
			TTL:      time.Duration(r.TTLMinutes) * time.Minute,
		}))
	}
	return out
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one ingestion and exit")
	flag.BoolVar(&cfg.force, "force", false, "Ignore dataset freshness")

	flag.Parse()

	return cfg
}
