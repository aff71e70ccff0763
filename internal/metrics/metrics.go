// Package metrics exposes pipeline, adapter and delivery counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"NewsDigest/internal/notification"
	"NewsDigest/internal/scanner"
	"NewsDigest/internal/usecase"
)

const namespace = "newsdigest"

// Collector implements every recorder hook of the pipeline.
type Collector struct {
	fetched       *prometheus.CounterVec
	duplicates    *prometheus.CounterVec
	persisted     *prometheus.CounterVec
	digests       *prometheus.CounterVec
	runs          *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	cleaned       prometheus.Counter
	sourceFailure *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
}

var (
	_ usecase.Metrics               = (*Collector)(nil)
	_ scanner.FailureRecorder       = (*Collector)(nil)
	_ notification.DeliveryRecorder = (*Collector)(nil)
)

// NewCollector creates the collector and registers it on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_fetched_total",
			Help:      "Articles returned by source groups.",
		}, []string{"group"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_duplicate_total",
			Help:      "Fetched articles already present in the store.",
		}, []string{"group"}),
		persisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_persisted_total",
			Help:      "New articles written to the store.",
		}, []string{"group"}),
		digests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "digests_total",
			Help:      "Digest results by outcome.",
		}, []string{"outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by group and outcome.",
		}, []string{"group", "outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of pipeline runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"group"}),
		cleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_cleaned_total",
			Help:      "Rows removed by retention cleanup.",
		}),
		sourceFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Adapter fetch or parse failures.",
		}, []string{"group", "source"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification group deliveries by outcome.",
		}, []string{"notification_group", "outcome"}),
	}

	reg.MustRegister(
		c.fetched,
		c.duplicates,
		c.persisted,
		c.digests,
		c.runs,
		c.runDuration,
		c.cleaned,
		c.sourceFailure,
		c.deliveries,
	)

	return c
}

func (c *Collector) ArticlesFetched(group string, n int) {
	c.fetched.WithLabelValues(group).Add(float64(n))
}

func (c *Collector) ArticlesDuplicate(group string, n int) {
	c.duplicates.WithLabelValues(group).Add(float64(n))
}

func (c *Collector) ArticlesPersisted(group string, n int) {
	c.persisted.WithLabelValues(group).Add(float64(n))
}

func (c *Collector) DigestsProduced(ok, degraded int) {
	c.digests.WithLabelValues("ok").Add(float64(ok))
	c.digests.WithLabelValues("degraded").Add(float64(degraded))
}

// RunFinished records one run; err marks it failed.
func (c *Collector) RunFinished(group string, took time.Duration, err error) {
	c.runs.WithLabelValues(group, outcome(err == nil)).Inc()
	c.runDuration.WithLabelValues(group).Observe(took.Seconds())
}

func (c *Collector) ArticlesCleaned(n int64) {
	c.cleaned.Add(float64(n))
}

func (c *Collector) SourceFailed(group, source string) {
	c.sourceFailure.WithLabelValues(group, source).Inc()
}

func (c *Collector) NotificationDelivered(group string, ok bool) {
	c.deliveries.WithLabelValues(group, outcome(ok)).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

// Handler returns the Prometheus scrape handler.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
