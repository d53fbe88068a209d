// Package telemetry exposes prometheus metrics for turns, stream events,
// retrieval, side effects, and HTTP traffic, plus gauges over the store.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"atelier/pkg/logger"
	"atelier/pkg/store"
)

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_turns_total",
		Help: "Conversation turns by agent and terminal status.",
	}, []string{"agent", "status"})

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "atelier_turn_duration_seconds",
		Help:    "End-to-end turn duration.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	streamEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_stream_events_total",
		Help: "Events emitted onto turn streams, by type.",
	}, []string{"type"})

	retrievalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "atelier_retrieval_duration_seconds",
		Help:    "Scope resolution round-trip duration.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	retrievalCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "atelier_retrieval_candidates",
		Help:    "Candidates returned per retrieval.",
		Buckets: prometheus.LinearBuckets(0, 2, 11),
	})

	sideEffects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_side_effects_total",
		Help: "Side-effect outcomes by kind and status.",
	}, []string{"kind", "status"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_http_requests_total",
		Help: "HTTP requests by method and status code.",
	}, []string{"method", "code"})

	httpDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "atelier_http_request_duration_seconds",
		Help:    "HTTP request duration.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})
)

func init() {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "atelier_store_disk_bytes",
		Help: "On-disk size of the store directory.",
	}, func() float64 { return float64(store.GetStats().DiskBytes) })
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "atelier_store_wal_bytes",
		Help: "Store write-ahead log size.",
	}, func() float64 { return float64(store.GetStats().WALBytes) })
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "atelier_store_compaction_debt_bytes",
		Help: "Estimated pending compaction debt.",
	}, func() float64 { return float64(store.GetStats().CompactionDebt) })
}

// TurnCompleted records one finished turn.
func TurnCompleted(agent, status string, dur time.Duration) {
	turnsTotal.WithLabelValues(agent, status).Inc()
	turnDuration.Observe(dur.Seconds())
}

// StreamEventEmitted counts one emitted stream event.
func StreamEventEmitted(typ string) {
	streamEvents.WithLabelValues(typ).Inc()
}

// RetrievalObserved records one scope resolution round trip.
func RetrievalObserved(dur time.Duration, candidates int) {
	retrievalDuration.Observe(dur.Seconds())
	retrievalCandidates.Observe(float64(candidates))
}

// SideEffectObserved counts one side-effect state transition.
func SideEffectObserved(kind, status string) {
	sideEffects.WithLabelValues(kind, status).Inc()
}

// Handler serves the /metrics endpoint.
func Handler() http.Handler { return promhttp.Handler() }

// slowThreshold is the duration above which requests get a log line.
var slowThreshold = 2 * time.Second

// Middleware records request counts and durations, and logs slow
// requests. The recorder passes Flush through so streaming responses keep
// working.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		srw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(srw, r)
		dur := time.Since(start)
		httpRequests.WithLabelValues(r.Method, strconv.Itoa(srw.status)).Inc()
		httpDuration.Observe(dur.Seconds())
		if dur > slowThreshold {
			logger.Warn("slow_request", "method", r.Method, "path", r.URL.Path, "duration_ms", dur.Milliseconds(), "status", srw.status)
		}
	})
}

// statusRecorder captures the response status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
