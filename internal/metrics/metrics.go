// Package metrics holds the process-wide Prometheus collectors of the tracker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Redirects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_redirects_total",
		Help: "Redirects issued, partitioned by entry point and outcome.",
	}, []string{"entry", "outcome"})

	SplitSelections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_split_selections_total",
		Help: "Split test draws, partitioned by split test and variant.",
	}, []string{"split_test_id", "variant_id"})

	ClickWriteSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracking_click_write_seconds",
		Help:    "Latency of the synchronous click write.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	BackgroundTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_background_tasks_total",
		Help: "Fire-and-forget tasks, partitioned by task and result.",
	}, []string{"task", "result"})

	GeoLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_geo_lookups_total",
		Help: "Geo lookups, partitioned by outcome.",
	}, []string{"outcome"})

	Conversions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_conversions_total",
		Help: "Conversion attempts, partitioned by origin and result.",
	}, []string{"origin", "result"})

	AnalyticsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_analytics_dropped_total",
		Help: "Clicks dropped because the analytics buffer was full.",
	})
)
