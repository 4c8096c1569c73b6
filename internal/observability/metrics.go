package observability

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/damagegraph-backend/internal/platform/envutil"
	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
)

const namespace = "damagegraph"

type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	pipelineRuns     *prometheus.CounterVec
	pipelineDuration *prometheus.HistogramVec
	detections       *prometheus.CounterVec
	linkedDamages    *prometheus.CounterVec
	graphWrites      *prometheus.CounterVec
	invalidEntries   prometheus.Counter
	lockContention   prometheus.Counter
	storeErrors      *prometheus.CounterVec

	dependencyUp   *prometheus.GaugeVec
	dependencyPing *prometheus.GaugeVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", true)
}

func Current() *Metrics {
	return instance
}

// Init builds the process-wide metrics once. It returns nil when METRICS_ENABLED is false.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		log.Info("prometheus metrics initialized")
	})
	return instance
}

// New returns metrics on a fresh registry that also carries the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "API request latency in seconds by method/route/status.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "api_inflight_requests",
			Help:      "In-flight API requests.",
		}),
		pipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by kind (timeline, project, link) and status.",
		}, []string{"kind", "status"}),
		pipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Pipeline run duration in seconds by kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Detections seen by the projector, by outcome (projected, malformed).",
		}, []string{"outcome"}),
		linkedDamages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bim_link_damages_total",
			Help:      "Damages processed by the BIM linker, by outcome (linked, unresolved, failed).",
		}, []string{"outcome"}),
		graphWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_writes_total",
			Help:      "Graph entities written by the timeline ingest, by kind.",
		}, []string{"kind"}),
		invalidEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeline_invalid_entries_total",
			Help:      "Timeline document entries rejected by validation.",
		}),
		lockContention: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "damage_lock_contention_total",
			Help:      "Ingests refused because another request held a damage lock.",
		}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Store failures by store and operation.",
		}, []string{"store", "op"}),
		dependencyUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dependency_up",
			Help:      "1 when the dependency answered its last probe.",
		}, []string{"dependency"}),
		dependencyPing: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dependency_ping_seconds",
			Help:      "Latency of the last successful dependency probe.",
		}, []string{"dependency"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.pipelineRuns, m.pipelineDuration,
		m.detections, m.linkedDamages, m.graphWrites,
		m.invalidEntries, m.lockContention, m.storeErrors,
		m.dependencyUp, m.dependencyPing,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	code := strconv.Itoa(status)
	m.apiRequests.WithLabelValues(method, route, code).Inc()
	m.apiLatency.WithLabelValues(method, route, code).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObservePipeline(kind, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.pipelineRuns.WithLabelValues(kind, status).Inc()
	m.pipelineDuration.WithLabelValues(kind).Observe(dur.Seconds())
}

func (m *Metrics) ObserveProjection(projected, malformed int) {
	if m == nil {
		return
	}
	m.detections.WithLabelValues("projected").Add(float64(projected))
	m.detections.WithLabelValues("malformed").Add(float64(malformed))
}

func (m *Metrics) ObserveLink(linked, unresolved, failed int) {
	if m == nil {
		return
	}
	m.linkedDamages.WithLabelValues("linked").Add(float64(linked))
	m.linkedDamages.WithLabelValues("unresolved").Add(float64(unresolved))
	m.linkedDamages.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) ObserveGraphWrites(damages, epochs, relationships, invalid int) {
	if m == nil {
		return
	}
	m.graphWrites.WithLabelValues("damage").Add(float64(damages))
	m.graphWrites.WithLabelValues("epoch").Add(float64(epochs))
	m.graphWrites.WithLabelValues("relationship").Add(float64(relationships))
	m.invalidEntries.Add(float64(invalid))
}

func (m *Metrics) IncLockContention() {
	if m == nil {
		return
	}
	m.lockContention.Inc()
}

func (m *Metrics) IncStoreError(store, op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(store, op).Inc()
}

func scrapeInterval() time.Duration {
	return envutil.Seconds("METRICS_SCRAPE_INTERVAL_SECONDS", 10*time.Second)
}

// Pinger is anything that can be probed for liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StartDependencyCollector probes p every scrape interval until ctx ends.
func (m *Metrics) StartDependencyCollector(ctx context.Context, log *logger.Logger, name string, p Pinger) {
	if m == nil || p == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.probe(ctx, log, name, p)
			}
		}
	}()
}

func (m *Metrics) probe(ctx context.Context, log *logger.Logger, name string, p Pinger) {
	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		m.dependencyUp.WithLabelValues(name).Set(0)
		log.Warn("metrics: dependency ping failed", "dependency", name, "error", err)
		return
	}
	m.dependencyUp.WithLabelValues(name).Set(1)
	m.dependencyPing.WithLabelValues(name).Set(time.Since(start).Seconds())
}

// RedisPinger adapts a go-redis client to Pinger.
type RedisPinger struct{ Client *goredis.Client }

func (r RedisPinger) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}
