package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teamup/teamup/internal/policy"
)

var (
	// Registry holds the application's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "teamup",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "teamup",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	lifecycleOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "teamup",
			Subsystem: "lifecycle",
			Name:      "operations_total",
			Help:      "Membership lifecycle operations by outcome and denial reason.",
		},
		[]string{"operation", "outcome", "reason"},
	)

	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "teamup",
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Currently open websocket sessions.",
		},
	)

	eventsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "teamup",
			Subsystem: "notify",
			Name:      "events_total",
			Help:      "Lifecycle events handed to the dispatcher.",
		},
		[]string{"type"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequests,
		httpDuration,
		lifecycleOps,
		wsConnections,
		eventsDispatched,
	)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordLifecycle counts one lifecycle operation. Denials are labelled with
// their reason; any other error counts as an error outcome.
func RecordLifecycle(operation string, err error) {
	outcome, reason := "ok", ""
	if err != nil {
		if r, ok := policy.ReasonOf(err); ok {
			outcome, reason = "denied", string(r)
		} else {
			outcome = "error"
		}
	}
	lifecycleOps.WithLabelValues(operation, outcome, reason).Inc()
}

// WSConnected adjusts the open websocket session gauge by delta.
func WSConnected(delta int) {
	wsConnections.Add(float64(delta))
}

// EventDispatched counts an event handed to the dispatcher.
func EventDispatched(eventType string) {
	eventsDispatched.WithLabelValues(eventType).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Middleware records request count and latency labelled by the chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
