package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodio/simap-assistant/internal/core/domain"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	retrievalCandidates *prometheus.HistogramVec
	fusedListSize       *prometheus.HistogramVec
	rerankTotal         *prometheus.CounterVec
	turnsTotal          *prometheus.CounterVec
	turnDuration        *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simap",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "simap",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "simap",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	retrievalCandidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "simap",
			Subsystem: "retrieval",
			Name:      "candidates",
			Help:      "Distribution of retrieved candidates per source per turn.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100, 150},
		},
		[]string{"service", "source"},
	)
	fusedListSize := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "simap",
			Subsystem: "retrieval",
			Name:      "fused_size",
			Help:      "Distribution of fused list sizes per turn.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100, 150},
		},
		[]string{"service"},
	)
	rerankTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simap",
			Subsystem: "retrieval",
			Name:      "rerank_total",
			Help:      "Total rerank outcomes per turn.",
		},
		[]string{"service", "outcome"},
	)
	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simap",
			Subsystem: "turn",
			Name:      "total",
			Help:      "Total conversation turns by outcome.",
		},
		[]string{"service", "outcome"},
	)
	turnDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "simap",
			Subsystem: "turn",
			Name:      "duration_seconds",
			Help:      "Full turn duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "outcome"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		retrievalCandidates,
		fusedListSize,
		rerankTotal,
		turnsTotal,
		turnDuration,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		retrievalCandidates: retrievalCandidates,
		fusedListSize:       fusedListSize,
		rerankTotal:         rerankTotal,
		turnsTotal:          turnsTotal,
		turnDuration:        turnDuration,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// TurnOutcome returns the counter label for an answer: answered,
// refused, or error.
func TurnOutcome(answer *domain.Answer) string {
	switch {
	case answer == nil:
		return "error"
	case answer.Refused:
		return "refused"
	case len(answer.Text) >= 7 && answer.Text[:7] == "Error: ":
		return "error"
	default:
		return "answered"
	}
}

func (m *HTTPServerMetrics) RecordTurn(service string, answer *domain.Answer, duration time.Duration) {
	outcome := TurnOutcome(answer)
	m.turnsTotal.WithLabelValues(service, outcome).Inc()
	m.turnDuration.WithLabelValues(service, outcome).Observe(duration.Seconds())

	if answer == nil {
		return
	}
	info := answer.Retrieval
	m.retrievalCandidates.WithLabelValues(service, "lexical").Observe(float64(info.LexicalCandidates))
	m.retrievalCandidates.WithLabelValues(service, "semantic").Observe(float64(info.SemanticCandidates))
	m.fusedListSize.WithLabelValues(service).Observe(float64(info.FusedCandidates))

	rerankOutcome := "fallback"
	if info.RerankApplied {
		rerankOutcome = "applied"
	}
	m.rerankTotal.WithLabelValues(service, rerankOutcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}
