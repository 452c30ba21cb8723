package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	searchRequestsTotal *prometheus.CounterVec
	searchHitTotal      *prometheus.CounterVec
	searchNoHitTotal    *prometheus.CounterVec
	searchChunks        *prometheus.HistogramVec

	analysisTotal        *prometheus.CounterVec
	modelsDispatched     *prometheus.HistogramVec
	modelFailuresTotal   *prometheus.CounterVec
	consensusContributed *prometheus.HistogramVec
	llmTokensTotal       *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plan",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "plan",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "plan",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	searchRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plan",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total successful search requests.",
		},
		[]string{"service", "endpoint"},
	)
	searchHitTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plan",
			Subsystem: "search",
			Name:      "hit_total",
			Help:      "Total search requests with at least one result.",
		},
		[]string{"service", "endpoint"},
	)
	searchNoHitTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plan",
			Subsystem: "search",
			Name:      "no_hit_total",
			Help:      "Total search requests with no results.",
		},
		[]string{"service", "endpoint"},
	)
	searchChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "plan",
			Subsystem: "search",
			Name:      "returned_chunks",
			Help:      "Distribution of chunks returned per search request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "endpoint"},
	)
	analysisTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plan",
			Subsystem: "consensus",
			Name:      "analyses_total",
			Help:      "Total consensus analyses by task type and status.",
		},
		[]string{"service", "task_type", "status"},
	)
	modelsDispatched := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "plan",
			Subsystem: "consensus",
			Name:      "models_dispatched",
			Help:      "Distribution of models dispatched per analysis.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
		[]string{"service"},
	)
	modelFailuresTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plan",
			Subsystem: "consensus",
			Name:      "model_failures_total",
			Help:      "Total per-model call or parse failures.",
		},
		[]string{"service", "provider"},
	)
	consensusContributed := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "plan",
			Subsystem: "consensus",
			Name:      "contributing_models",
			Help:      "Distribution of models contributing to each merged result.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
		[]string{"service"},
	)
	llmTokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plan",
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Approximate token usage by model.",
		},
		[]string{"service", "model"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		searchRequestsTotal,
		searchHitTotal,
		searchNoHitTotal,
		searchChunks,
		analysisTotal,
		modelsDispatched,
		modelFailuresTotal,
		consensusContributed,
		llmTokensTotal,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		searchRequestsTotal:  searchRequestsTotal,
		searchHitTotal:       searchHitTotal,
		searchNoHitTotal:     searchNoHitTotal,
		searchChunks:         searchChunks,
		analysisTotal:        analysisTotal,
		modelsDispatched:     modelsDispatched,
		modelFailuresTotal:   modelFailuresTotal,
		consensusContributed: consensusContributed,
		llmTokensTotal:       llmTokensTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
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
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/plans/"):
		rest := strings.TrimPrefix(path, "/v1/plans/")
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return "/v1/plans/{plan_id}/" + rest[i+1:]
		}
		return "/v1/plans/{plan_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordSearch(service, endpoint string, resultCount int) {
	m.searchRequestsTotal.WithLabelValues(service, endpoint).Inc()
	m.searchChunks.WithLabelValues(service, endpoint).Observe(float64(resultCount))

	if resultCount > 0 {
		m.searchHitTotal.WithLabelValues(service, endpoint).Inc()
		return
	}
	m.searchNoHitTotal.WithLabelValues(service, endpoint).Inc()
}

func (m *HTTPServerMetrics) RecordAnalysis(service, taskType, status string, dispatched, contributed int) {
	if status == "" {
		status = "unknown"
	}
	m.analysisTotal.WithLabelValues(service, taskType, status).Inc()
	if dispatched > 0 {
		m.modelsDispatched.WithLabelValues(service).Observe(float64(dispatched))
	}
	if contributed > 0 {
		m.consensusContributed.WithLabelValues(service).Observe(float64(contributed))
	}
}

func (m *HTTPServerMetrics) RecordModelFailure(service, provider string) {
	if provider == "" {
		provider = "unknown"
	}
	m.modelFailuresTotal.WithLabelValues(service, provider).Inc()
}

func (m *HTTPServerMetrics) RecordTokenUsage(service, model string, tokens int) {
	if tokens <= 0 {
		return
	}
	if model == "" {
		model = "unknown"
	}
	m.llmTokensTotal.WithLabelValues(service, model).Add(float64(tokens))
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

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
