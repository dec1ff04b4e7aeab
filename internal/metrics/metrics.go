// Package metrics exposes Prometheus collectors for loading, inference,
// capture and the preview server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "apiscout"

// Collector owns its registry so several instances can coexist in tests.
type Collector struct {
	registry *prometheus.Registry

	Records         *prometheus.CounterVec
	Dropped         *prometheus.CounterVec
	Routes          prometheus.Gauge
	AmbiguousRoutes prometheus.Gauge
	RunDuration     prometheus.Histogram
	Runs            *prometheus.CounterVec

	Pages     *prometheus.CounterVec
	Exchanges prometheus.Counter
	QueueSize prometheus.Gauge

	RequestDuration *prometheus.HistogramVec
	RequestCounter  *prometheus.CounterVec
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		Records: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Capture records seen, by stage",
		}, []string{"stage"}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Records rejected by the qualification filter, by reason",
		}, []string{"reason"}),
		Routes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "routes",
			Help:      "Routes in the last inferred catalog",
		}),
		AmbiguousRoutes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ambiguous_routes",
			Help:      "Routes in the last catalog whose records matched several templates",
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Duration of load, filter and inference",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_runs_total",
			Help:      "Analysis runs, by result",
		}, []string{"result"}),
		Pages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crawl_pages_total",
			Help:      "Pages handled by the capture crawler, by result",
		}, []string{"result"}),
		Exchanges: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crawl_exchanges_total",
			Help:      "API exchanges written by the capture crawler",
		}),
		QueueSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "crawl_queue_size",
			Help:      "Pages waiting in the crawl queue",
		}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Preview server request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "path", "status"}),
		RequestCounter: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Preview server requests",
		}, []string{"method", "path", "status"}),
	}
}

// ObserveLoad records decoder outcomes.
func (m *Collector) ObserveLoad(decoded, malformed int) {
	m.Records.WithLabelValues("decoded").Add(float64(decoded))
	m.Records.WithLabelValues("malformed").Add(float64(malformed))
}

// ObserveFilter records the kept count and the drops per reason.
func (m *Collector) ObserveFilter(kept int, dropped map[string]int) {
	m.Records.WithLabelValues("kept").Add(float64(kept))
	for reason, n := range dropped {
		m.Dropped.WithLabelValues(reason).Add(float64(n))
	}
}

// ObserveRun records one finished analysis.
func (m *Collector) ObserveRun(routes, ambiguous int, d time.Duration, err error) {
	if err != nil {
		m.Runs.WithLabelValues("error").Inc()
		return
	}
	m.Runs.WithLabelValues("ok").Inc()
	m.Routes.Set(float64(routes))
	m.AmbiguousRoutes.Set(float64(ambiguous))
	m.RunDuration.Observe(d.Seconds())
}

func (m *Collector) ObservePage(result string) {
	m.Pages.WithLabelValues(result).Inc()
}

func (m *Collector) ObserveExchange() {
	m.Exchanges.Inc()
}

func (m *Collector) ObserveQueueSize(n int) {
	m.QueueSize.Set(float64(n))
}

func (m *Collector) ObserveRequest(method, path, status string, d time.Duration) {
	m.RequestCounter.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
