// Package metrics collects and exposes Prometheus metrics for the sync
// engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the slice of metrics collection used by the provider
// client and the sync engine. All methods must be safe on a nil
// receiver implementation.
type Recorder interface {
	RecordPageFetched(endpoint string, itemCount int)
	RecordRateLimited(endpoint string)
	RecordTokenRefresh()
	RecordSyncOutcome(success bool)
	RecordDrainDuration(endpoint string, d time.Duration)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	pagesFetched   *prometheus.CounterVec
	itemsCollected *prometheus.CounterVec
	rateLimited    *prometheus.CounterVec
	tokenRefreshes prometheus.Counter
	syncSuccess    prometheus.Counter
	syncFail       prometheus.Counter
	drainDuration  *prometheus.HistogramVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		pagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sass_pages_fetched_total",
			Help: "Pages fetched from the marketplace API, per endpoint.",
		}, []string{"endpoint"}),
		itemsCollected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sass_items_collected_total",
			Help: "Items collected from the marketplace API, per endpoint.",
		}, []string{"endpoint"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sass_rate_limited_total",
			Help: "Rate-limit responses observed, per endpoint.",
		}, []string{"endpoint"}),
		tokenRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sass_token_refreshes_total",
			Help: "OAuth token refresh round trips performed.",
		}),
		syncSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sass_sync_success_total",
			Help: "Completed account sync cycles.",
		}),
		syncFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sass_sync_fail_total",
			Help: "Failed account sync cycles.",
		}),
		drainDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sass_drain_duration_seconds",
			Help:    "Duration of one full endpoint drain.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}

	reg.MustRegister(
		c.pagesFetched,
		c.itemsCollected,
		c.rateLimited,
		c.tokenRefreshes,
		c.syncSuccess,
		c.syncFail,
		c.drainDuration,
	)

	return c
}

func (c *Collector) RecordPageFetched(endpoint string, itemCount int) {
	c.pagesFetched.WithLabelValues(endpoint).Inc()
	c.itemsCollected.WithLabelValues(endpoint).Add(float64(itemCount))
}

func (c *Collector) RecordRateLimited(endpoint string) {
	c.rateLimited.WithLabelValues(endpoint).Inc()
}

func (c *Collector) RecordTokenRefresh() {
	c.tokenRefreshes.Inc()
}

func (c *Collector) RecordSyncOutcome(success bool) {
	if success {
		c.syncSuccess.Inc()
		return
	}
	c.syncFail.Inc()
}

func (c *Collector) RecordDrainDuration(endpoint string, d time.Duration) {
	c.drainDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// Noop is used where no registry is wired, mostly in tests.
type Noop struct{}

func (Noop) RecordPageFetched(string, int)             {}
func (Noop) RecordRateLimited(string)                  {}
func (Noop) RecordTokenRefresh()                       {}
func (Noop) RecordSyncOutcome(bool)                    {}
func (Noop) RecordDrainDuration(string, time.Duration) {}

var _ Recorder = (*Collector)(nil)
var _ Recorder = Noop{}
