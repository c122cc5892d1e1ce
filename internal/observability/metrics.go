// Package observability carries acquisition metrics and the optional
// HTTP listener exposing them.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts pipeline activity. A nil *Metrics is a no-op, so
// components can be wired without a registry in tests.
type Metrics struct {
	tilesFetched  prometheus.Counter
	tilesFailed   prometheus.Counter
	tilesSkipped  prometheus.Counter
	fetchRetries  prometheus.Counter
	fetchDuration prometheus.Histogram
	mosaicRuns    *prometheus.CounterVec
}

// NewMetrics registers the pipeline collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		tilesFetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "tilemosaic_tiles_fetched_total",
			Help: "Total number of tiles fetched successfully",
		}),
		tilesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "tilemosaic_tiles_failed_total",
			Help: "Total number of tiles that failed after all retries",
		}),
		tilesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "tilemosaic_tiles_skipped_total",
			Help: "Total number of tiles skipped by the area-of-interest filter",
		}),
		fetchRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "tilemosaic_fetch_retries_total",
			Help: "Total number of fetch retry attempts",
		}),
		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tilemosaic_fetch_duration_seconds",
			Help:    "Tile fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		mosaicRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tilemosaic_mosaic_runs_total",
			Help: "Total number of mosaic merges by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) TileFetched(d time.Duration) {
	if m == nil {
		return
	}
	m.tilesFetched.Inc()
	m.fetchDuration.Observe(d.Seconds())
}

func (m *Metrics) TileFailed() {
	if m == nil {
		return
	}
	m.tilesFailed.Inc()
}

func (m *Metrics) TileSkipped() {
	if m == nil {
		return
	}
	m.tilesSkipped.Inc()
}

func (m *Metrics) FetchRetried() {
	if m == nil {
		return
	}
	m.fetchRetries.Inc()
}

func (m *Metrics) MosaicRun(outcome string) {
	if m == nil {
		return
	}
	m.mosaicRuns.WithLabelValues(outcome).Inc()
}
