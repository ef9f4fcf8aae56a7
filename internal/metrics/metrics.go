// Package metrics holds the Prometheus collectors of the ingestion
// pipeline. They register on the default registry and are exposed by the
// web server at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	FetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classfinder",
		Name:      "schedule_fetch_total",
		Help:      "Room schedule fetches by outcome.",
	}, []string{"outcome"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "classfinder",
		Name:      "ingest_run_duration_seconds",
		Help:      "Wall time of ingestion runs that fetched schedules.",
		Buckets:   prometheus.ExponentialBuckets(5, 2, 8),
	})

	LastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "classfinder",
		Name:      "ingest_last_success_timestamp_seconds",
		Help:      "Unix time of the last dataset write.",
	})

	DatasetBuildings = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "classfinder",
		Name:      "dataset_buildings",
		Help:      "Buildings in the last written dataset.",
	})

	DatasetRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "classfinder",
		Name:      "dataset_rooms",
		Help:      "Rooms in the last written dataset.",
	})

	UnmatchedRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "classfinder",
		Name:      "unmatched_rooms",
		Help:      "Rooms without a resolved building in the last run.",
	})
)
