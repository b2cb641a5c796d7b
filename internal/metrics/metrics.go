package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GenerationsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blueprint_generations_started_total",
			Help: "Total number of generation streams opened",
		},
		[]string{"platform"},
	)

	GenerationsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blueprint_generations_completed_total",
			Help: "Total number of generation streams that finished cleanly",
		},
		[]string{"platform"},
	)

	GenerationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blueprint_generations_failed_total",
			Help: "Total number of generation streams that ended in error",
		},
		[]string{"platform", "kind"},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blueprint_generation_duration_seconds",
			Help:    "Wall-clock duration of generation streams",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"platform"},
	)

	StreamedBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blueprint_streamed_bytes_total",
			Help: "Total content bytes relayed to clients",
		},
		[]string{"platform"},
	)
)
