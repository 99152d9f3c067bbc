// Package metrics exposes the daemon's Prometheus registry: counters and
// gauges describing coordinator progress, the candidate scan, and the HTTP
// surface.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Daemon holds every metric the liquidation pipeline daemon records.
type Daemon struct {
	registry *prometheus.Registry

	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec

	candidatesFound  prometheus.Gauge
	scanDuration     prometheus.Histogram
	eventsDispatched *prometheus.CounterVec
	coordinatorLag   *prometheus.GaugeVec
}

var (
	once     sync.Once
	instance *Daemon
)

// Default returns the process-wide metrics registry, creating it on first use.
func Default() *Daemon {
	once.Do(func() {
		registry := prometheus.NewRegistry()
		d := &Daemon{
			registry: registry,
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "liquidatord",
				Name:      "requests_total",
				Help:      "Total HTTP requests processed by the daemon.",
			}, []string{"route", "method", "status"}),
			durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "liquidatord",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			candidatesFound: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "liquidatord",
				Name:      "candidates_found",
				Help:      "Number of liquidation candidates returned by the most recent scan.",
			}),
			scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "liquidatord",
				Name:      "scan_duration_seconds",
				Help:      "Duration of a full candidate scan.",
				Buckets:   prometheus.DefBuckets,
			}),
			eventsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "liquidatord",
				Name:      "events_dispatched_total",
				Help:      "Count of decoded log events folded into the read models, by kind.",
			}, []string{"kind"}),
			coordinatorLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "liquidatord",
				Name:      "coordinator_lag_blocks",
				Help:      "Blocks between the chain head and the last synced watermark, by stream.",
			}, []string{"stream"}),
		}
		registry.MustRegister(d.requests, d.durations, d.candidatesFound, d.scanDuration, d.eventsDispatched, d.coordinatorLag)
		instance = d
	})
	return instance
}

// Handler serves the registry in the Prometheus text exposition format.
func (d *Daemon) Handler() http.Handler {
	return promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one HTTP request's outcome and latency.
func (d *Daemon) ObserveRequest(route, method string, status int, duration time.Duration) {
	d.requests.WithLabelValues(route, method, http.StatusText(status)).Inc()
	d.durations.WithLabelValues(route, method).Observe(duration.Seconds())
}

// ObserveScan records the size and duration of a candidate scan.
func (d *Daemon) ObserveScan(candidateCount int, duration time.Duration) {
	d.candidatesFound.Set(float64(candidateCount))
	d.scanDuration.Observe(duration.Seconds())
}

// ObserveEventDispatched increments the per-kind dispatch counter.
func (d *Daemon) ObserveEventDispatched(kind string) {
	d.eventsDispatched.WithLabelValues(kind).Inc()
}

// ObserveCoordinatorLag records how many blocks a stream trails the chain head.
func (d *Daemon) ObserveCoordinatorLag(stream string, lag uint64) {
	d.coordinatorLag.WithLabelValues(stream).Set(float64(lag))
}

// InstrumentedHandler wraps next so every request is timed and counted under
// route.
func InstrumentedHandler(d *Daemon, route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		d.ObserveRequest(route, r.Method, recorder.status, time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
