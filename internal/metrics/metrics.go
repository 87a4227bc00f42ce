package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StreamIterationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atmostream_stream_iterations_total",
			Help: "Total number of stream iterations by outcome",
		},
		[]string{"model", "outcome"},
	)

	StreamIterationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atmostream_stream_iteration_duration_seconds",
			Help:    "Duration of stream iterations, excluding the poll wait",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"model"},
	)

	StreamRecoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atmostream_stream_recoveries_total",
			Help: "Total number of cursor recoveries after a failed iteration",
		},
		[]string{"model"},
	)

	FilesFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atmostream_files_fetched_total",
			Help: "Total number of raw files downloaded",
		},
		[]string{"model"},
	)

	CyclesCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atmostream_cycles_completed_total",
			Help: "Total number of forecast cycles fully downloaded",
		},
		[]string{"model"},
	)

	StreamCursorTime = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "atmostream_stream_cursor_timestamp_seconds",
			Help: "Initialisation time of the cycle the stream is polling",
		},
		[]string{"model"},
	)

	NowcastRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atmostream_nowcast_refresh_total",
			Help: "Total number of nowcast refreshes by status",
		},
		[]string{"model", "status"},
	)
)
