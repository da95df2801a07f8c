package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMetrics(t *testing.T) {
	InitMetrics()
	InitMetrics() // idempotent

	before := testutil.ToFloat64(stageDispatchTotal.WithLabelValues("researcher", "success"))
	RecordStageDispatch("researcher", "success", 150*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(stageDispatchTotal.WithLabelValues("researcher", "success")))

	hitsBefore := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit"))
	RecordCacheLookup(true)
	RecordCacheLookup(false)
	assert.Equal(t, hitsBefore+1, testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit")))

	tokensBefore := testutil.ToFloat64(llmTokensTotal.WithLabelValues("mock", "prompt"))
	RecordLLMTokens("mock", 12, 0)
	assert.Equal(t, tokensBefore+12, testutil.ToFloat64(llmTokensTotal.WithLabelValues("mock", "prompt")))

	active := testutil.ToFloat64(activeRuns)
	RunStarted()
	assert.Equal(t, active+1, testutil.ToFloat64(activeRuns))
	RunFinished("complete", time.Second)
	assert.Equal(t, active, testutil.ToFloat64(activeRuns))

	eventsBefore := testutil.ToFloat64(eventsTotal.WithLabelValues("status"))
	RecordEvent("status")
	assert.Equal(t, eventsBefore+1, testutil.ToFloat64(eventsTotal.WithLabelValues("status")))
}

func TestMetricsHandler(t *testing.T) {
	InitMetrics()
	RecordSubSearch("success")

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "searchflow_subsearches_total"))
}

func TestHealthChecker(t *testing.T) {
	hc := NewHealthChecker()
	hc.RegisterCheck(PingCheck())
	hc.RegisterCheck(CacheCheck(func(ctx context.Context) error { return errors.New("redis down") }))
	assert.Equal(t, []string{"llm_cache", "ping"}, hc.Names())

	resp := hc.Check(context.Background())
	assert.Equal(t, HealthStatusDegraded, resp.Status, "non-critical failure degrades")
	assert.Equal(t, HealthStatusDegraded, resp.Checks["llm_cache"].Status)
	assert.Equal(t, "redis down", resp.Checks["llm_cache"].Message)
	assert.Equal(t, HealthStatusHealthy, resp.Checks["ping"].Status)

	rec := httptest.NewRecorder()
	ReadinessHandler(hc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "degraded service stays ready")

	hc.RegisterCheck(RunnerCheck(func(ctx context.Context) error { return errors.New("closed") }))
	resp = hc.Check(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, resp.Status)
	assert.True(t, resp.Checks["runner"].Critical)

	rec = httptest.NewRecorder()
	ReadinessHandler(hc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	HealthHandler(hc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthCheckTimeout(t *testing.T) {
	hc := NewHealthChecker()
	hc.RegisterCheck(&HealthCheck{
		Name:      "slow",
		Timeout:   20 * time.Millisecond,
		CheckFunc: func(ctx context.Context) error { <-ctx.Done(); return ctx.Err() },
	})

	resp := hc.Check(context.Background())
	assert.Equal(t, HealthStatusDegraded, resp.Status)
	assert.Contains(t, resp.Checks["slow"].Message, "deadline exceeded")
}

func TestRegisterMountsEndpoints(t *testing.T) {
	InitMetrics()
	mux := http.NewServeMux()
	Register(mux)

	for _, path := range []string{"/health", "/health/live", "/metrics"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
