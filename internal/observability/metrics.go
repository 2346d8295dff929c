package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by API and worker flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	recoveriesTotal       *prometheus.CounterVec
	failuresTotal         *prometheus.CounterVec
	retriesScheduledTotal *prometheus.CounterVec
	chainsExhaustedTotal  *prometheus.CounterVec
	cardUpdatesTotal      prometheus.Counter
	noticesPublishedTotal *prometheus.CounterVec
	noticesDeliveredTotal *prometheus.CounterVec
	chargeDuration        prometheus.Histogram
	sweepDuration         prometheus.Histogram
	sweepBatchSize        prometheus.Histogram
	executorInflight      prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dunning_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dunning_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		recoveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dunning_engine",
				Name:      "recoveries_total",
				Help:      "Total number of payments recovered by attempt number.",
			},
			[]string{"attempt"},
		),
		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dunning_engine",
				Name:      "failures_total",
				Help:      "Total number of failed charge attempts by failure reason.",
			},
			[]string{"reason"},
		),
		retriesScheduledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dunning_engine",
				Name:      "retries_scheduled_total",
				Help:      "Total number of retry attempts scheduled by attempt number.",
			},
			[]string{"attempt"},
		),
		chainsExhaustedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dunning_engine",
				Name:      "chains_exhausted_total",
				Help:      "Total number of retry chains that exhausted all attempts, by final action.",
			},
			[]string{"action"},
		),
		cardUpdatesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "dunning_engine",
				Name:      "card_updates_total",
				Help:      "Total number of card update tokens consumed.",
			},
		),
		noticesPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dunning_engine",
				Name:      "notices_published_total",
				Help:      "Total number of dunning notices published by kind.",
			},
			[]string{"kind"},
		),
		noticesDeliveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dunning_engine",
				Name:      "notices_delivered_total",
				Help:      "Total number of dunning notice delivery outcomes by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		chargeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "dunning_engine",
				Name:      "charge_duration_seconds",
				Help:      "Gateway charge call duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		sweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "dunning_engine",
				Name:      "sweep_duration_seconds",
				Help:      "Sweep cycle duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		sweepBatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "dunning_engine",
				Name:      "sweep_batch_size",
				Help:      "Number of due attempts claimed per sweep cycle.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		executorInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "dunning_engine",
				Name:      "executor_inflight",
				Help:      "Current number of in-flight charge executions.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.recoveriesTotal,
		m.failuresTotal,
		m.retriesScheduledTotal,
		m.chainsExhaustedTotal,
		m.cardUpdatesTotal,
		m.noticesPublishedTotal,
		m.noticesDeliveredTotal,
		m.chargeDuration,
		m.sweepDuration,
		m.sweepBatchSize,
		m.executorInflight,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncRecovery(attemptNumber int) {
	if m == nil {
		return
	}
	m.recoveriesTotal.WithLabelValues(strconv.Itoa(attemptNumber)).Inc()
}

func (m *Metrics) IncFailure(reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.failuresTotal.WithLabelValues(reasonLabel).Inc()
}

func (m *Metrics) IncRetryScheduled(attemptNumber int) {
	if m == nil {
		return
	}
	m.retriesScheduledTotal.WithLabelValues(strconv.Itoa(attemptNumber)).Inc()
}

func (m *Metrics) IncChainExhausted(action string) {
	if m == nil {
		return
	}
	actionLabel := strings.TrimSpace(strings.ToLower(action))
	if actionLabel == "" {
		actionLabel = "none"
	}
	m.chainsExhaustedTotal.WithLabelValues(actionLabel).Inc()
}

func (m *Metrics) IncCardUpdate() {
	if m == nil {
		return
	}
	m.cardUpdatesTotal.Inc()
}

func (m *Metrics) IncNoticePublished(kind string) {
	if m == nil {
		return
	}
	kindLabel := strings.TrimSpace(strings.ToLower(kind))
	if kindLabel == "" {
		kindLabel = "unknown"
	}
	m.noticesPublishedTotal.WithLabelValues(kindLabel).Inc()
}

func (m *Metrics) IncNoticeDelivered(kind string, outcome string) {
	if m == nil {
		return
	}
	kindLabel := strings.TrimSpace(strings.ToLower(kind))
	if kindLabel == "" {
		kindLabel = "unknown"
	}
	outcomeLabel := strings.TrimSpace(strings.ToLower(outcome))
	if outcomeLabel == "" {
		outcomeLabel = "unknown"
	}
	m.noticesDeliveredTotal.WithLabelValues(kindLabel, outcomeLabel).Inc()
}

func (m *Metrics) ObserveChargeDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.chargeDuration.Observe(seconds)
}

func (m *Metrics) ObserveSweep(duration time.Duration, claimed int) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.sweepDuration.Observe(seconds)
	m.sweepBatchSize.Observe(float64(claimed))
}

func (m *Metrics) IncExecutorInFlight() {
	if m == nil {
		return
	}
	m.executorInflight.Inc()
}

func (m *Metrics) DecExecutorInFlight() {
	if m == nil {
		return
	}
	m.executorInflight.Dec()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}
