package observability

import (
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchflow_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "searchflow_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Stage metrics
	stageDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchflow_stage_dispatch_total",
			Help: "Total number of messages dispatched to stages",
		},
		[]string{"stage", "status"},
	)

	stageDispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "searchflow_stage_dispatch_duration_seconds",
			Help:    "Stage processing duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	// Reasoning capability metrics
	llmCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchflow_llm_calls_total",
			Help: "Total number of reasoning capability calls",
		},
		[]string{"provider", "model", "status"},
	)

	llmCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "searchflow_llm_call_duration_seconds",
			Help:    "Reasoning capability call duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	llmTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchflow_llm_tokens_total",
			Help: "Total number of tokens consumed",
		},
		[]string{"provider", "kind"},
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchflow_llm_cache_lookups_total",
			Help: "Reasoning response cache lookups by result",
		},
		[]string{"result"},
	)

	// Pipeline metrics
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchflow_runs_total",
			Help: "Total number of pipeline runs by terminal status",
		},
		[]string{"status"},
	)

	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "searchflow_run_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	activeRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "searchflow_active_runs",
			Help: "Number of pipeline runs in progress",
		},
	)

	fanOutWidth = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "searchflow_research_fanout_width",
			Help:    "Number of concurrent sub-searches per research step",
			Buckets: prometheus.LinearBuckets(1, 1, 8),
		},
	)

	subSearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchflow_subsearches_total",
			Help: "Total number of research sub-searches by outcome",
		},
		[]string{"status"},
	)

	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchflow_events_total",
			Help: "Total number of progress events emitted by type",
		},
		[]string{"type"},
	)

	// System metrics
	memoryUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "searchflow_memory_usage_bytes",
			Help: "Memory usage in bytes",
		},
	)

	goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "searchflow_goroutines",
			Help: "Number of goroutines",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers every collector with the default Prometheus registry.
// It is safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			stageDispatchTotal,
			stageDispatchDuration,
			llmCallsTotal,
			llmCallDuration,
			llmTokensTotal,
			cacheLookupsTotal,
			runsTotal,
			runDuration,
			activeRuns,
			fanOutWidth,
			subSearchesTotal,
			eventsTotal,
			memoryUsage,
			goroutines,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordStageDispatch records one coordinator dispatch.
func RecordStageDispatch(stage, status string, duration time.Duration) {
	stageDispatchTotal.WithLabelValues(stage, status).Inc()
	stageDispatchDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordLLMCall records one reasoning capability call.
func RecordLLMCall(provider, model, status string, duration time.Duration) {
	llmCallsTotal.WithLabelValues(provider, model, status).Inc()
	llmCallDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// RecordLLMTokens adds prompt and completion token counts.
func RecordLLMTokens(provider string, prompt, completion int) {
	if prompt > 0 {
		llmTokensTotal.WithLabelValues(provider, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		llmTokensTotal.WithLabelValues(provider, "completion").Add(float64(completion))
	}
}

// RecordCacheLookup records a response cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// RunStarted increments the active runs gauge.
func RunStarted() {
	activeRuns.Inc()
}

// RunFinished decrements the active runs gauge and records the outcome.
func RunFinished(status string, duration time.Duration) {
	activeRuns.Dec()
	runsTotal.WithLabelValues(status).Inc()
	runDuration.Observe(duration.Seconds())
}

// RecordFanOut records the width of a research fan-out.
func RecordFanOut(width int) {
	fanOutWidth.Observe(float64(width))
}

// RecordSubSearch records the outcome of one research sub-search.
func RecordSubSearch(status string) {
	subSearchesTotal.WithLabelValues(status).Inc()
}

// RecordEvent counts an emitted progress event.
func RecordEvent(eventType string) {
	eventsTotal.WithLabelValues(eventType).Inc()
}

// CollectRuntimeStats samples memory and goroutine gauges.
func CollectRuntimeStats() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	memoryUsage.Set(float64(m.Alloc))
	goroutines.Set(float64(runtime.NumGoroutine()))
}
