package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "queryview"

// Prometheus implements every hook interface on top of Prometheus
// collectors. Create it with [NewPrometheus] and call [Prometheus.Install]
// to route the global hooks to it.
type Prometheus struct {
	renders        *prometheus.CounterVec   // By view and status (ok/error)
	renderDuration *prometheus.HistogramVec // By view

	restores      *prometheus.CounterVec // By tier and status
	flushes       *prometheus.CounterVec // By status
	flushDuration prometheus.Histogram

	instances         prometheus.Gauge
	disposers         prometheus.Counter
	disposeDuration   prometheus.Histogram
	instancesStarted  prometheus.Counter
	instancesDisposed prometheus.Counter

	cacheOps   *prometheus.CounterVec // By key type and result (hit/miss/set)
	cacheBytes *prometheus.CounterVec // By key type

	httpRequests *prometheus.CounterVec   // By host and status code
	httpDuration *prometheus.HistogramVec // By host
	httpErrors   *prometheus.CounterVec   // By host
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "renders_total",
			Help:      "Total number of view renders",
		}, []string{"view", "status"}),
		renderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "render_duration_seconds",
			Help:      "View render duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"view"}),

		restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "restores_total",
			Help:      "Total number of state restores by source tier",
		}, []string{"tier", "status"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "flushes_total",
			Help:      "Total number of durable-tier flushes",
		}, []string{"status"}),
		flushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "flush_duration_seconds",
			Help:      "Durable-tier flush duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		instances: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "instances",
			Help:      "Number of live visualization instances",
		}),
		instancesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "instances_started_total",
			Help:      "Total number of visualization instances started",
		}),
		instancesDisposed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "instances_disposed_total",
			Help:      "Total number of visualization instances disposed",
		}),
		disposers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "disposers_run_total",
			Help:      "Total number of disposers run during instance disposal",
		}),
		disposeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "dispose_duration_seconds",
			Help:      "Instance disposal duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		cacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "operations_total",
			Help:      "Total number of fast-tier cache operations",
		}, []string{"key_type", "result"}),
		cacheBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "written_bytes_total",
			Help:      "Total bytes written to the fast-tier cache",
		}, []string{"key_type"}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http_client",
			Name:      "responses_total",
			Help:      "Total number of HTTP responses received",
		}, []string{"host", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http_client",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"host"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http_client",
			Name:      "errors_total",
			Help:      "Total number of failed HTTP requests",
		}, []string{"host"}),
	}

	for _, c := range []prometheus.Collector{
		p.renders, p.renderDuration,
		p.restores, p.flushes, p.flushDuration,
		p.instances, p.instancesStarted, p.instancesDisposed, p.disposers, p.disposeDuration,
		p.cacheOps, p.cacheBytes,
		p.httpRequests, p.httpDuration, p.httpErrors,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Install registers p as the global implementation of every hook.
func (p *Prometheus) Install() {
	SetRenderHooks(p)
	SetStateHooks(p)
	SetLifecycleHooks(p)
	SetCacheHooks(p)
	SetHTTPHooks(p)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (p *Prometheus) OnRenderStart(context.Context, string) {}

func (p *Prometheus) OnRenderComplete(_ context.Context, view string, d time.Duration, err error) {
	p.renders.WithLabelValues(view, status(err)).Inc()
	p.renderDuration.WithLabelValues(view).Observe(d.Seconds())
}

func (p *Prometheus) OnRestore(_ context.Context, tier string, _ int, err error) {
	p.restores.WithLabelValues(tier, status(err)).Inc()
}

func (p *Prometheus) OnFlush(_ context.Context, _ int, d time.Duration, err error) {
	p.flushes.WithLabelValues(status(err)).Inc()
	p.flushDuration.Observe(d.Seconds())
}

func (p *Prometheus) OnInstanceStart(context.Context, string, string) {
	p.instances.Inc()
	p.instancesStarted.Inc()
}

func (p *Prometheus) OnInstanceDisposed(_ context.Context, _, _ string, disposers int, d time.Duration) {
	p.instances.Dec()
	p.instancesDisposed.Inc()
	p.disposers.Add(float64(disposers))
	p.disposeDuration.Observe(d.Seconds())
}

func (p *Prometheus) OnCacheHit(_ context.Context, keyType string) {
	p.cacheOps.WithLabelValues(keyType, "hit").Inc()
}

func (p *Prometheus) OnCacheMiss(_ context.Context, keyType string) {
	p.cacheOps.WithLabelValues(keyType, "miss").Inc()
}

func (p *Prometheus) OnCacheSet(_ context.Context, keyType string, size int) {
	p.cacheOps.WithLabelValues(keyType, "set").Inc()
	p.cacheBytes.WithLabelValues(keyType).Add(float64(size))
}

func (p *Prometheus) OnRequest(context.Context, string, string, string) {}

func (p *Prometheus) OnResponse(_ context.Context, _, host, _ string, code int, d time.Duration) {
	p.httpRequests.WithLabelValues(host, strconv.Itoa(code)).Inc()
	p.httpDuration.WithLabelValues(host).Observe(d.Seconds())
}

func (p *Prometheus) OnError(_ context.Context, _, host, _ string, _ error) {
	p.httpErrors.WithLabelValues(host).Inc()
}

var (
	_ RenderHooks    = (*Prometheus)(nil)
	_ StateHooks     = (*Prometheus)(nil)
	_ LifecycleHooks = (*Prometheus)(nil)
	_ CacheHooks     = (*Prometheus)(nil)
	_ HTTPHooks      = (*Prometheus)(nil)
)
