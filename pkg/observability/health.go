package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthStatus is the aggregate or per-check outcome.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

const defaultCheckTimeout = 5 * time.Second

// HealthCheck probes one dependency. A failing Critical check makes the
// service unhealthy and unready; any other failure only degrades it.
type HealthCheck struct {
	Name      string
	CheckFunc func(context.Context) error
	Timeout   time.Duration
	Critical  bool
}

// HealthChecker runs the registered checks.
type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]*HealthCheck
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status    HealthStatus           `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckStatus `json:"checks"`
	System    SystemInfo             `json:"system"`
}

// CheckStatus is the outcome of one check.
type CheckStatus struct {
	Status   HealthStatus `json:"status"`
	Message  string       `json:"message,omitempty"`
	Critical bool         `json:"critical"`
	Duration string       `json:"duration"`
}

// SystemInfo is a runtime sample taken with each health report.
type SystemInfo struct {
	NumGoroutines int    `json:"num_goroutines"`
	NumCPU        int    `json:"num_cpu"`
	MemAllocMB    uint64 `json:"mem_alloc_mb"`
}

var (
	startTime = time.Now()
	version   = "dev"

	checkerOnce   sync.Once
	globalChecker *HealthChecker
)

// SetVersion sets the version reported by /health.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// NewHealthChecker returns an empty checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: make(map[string]*HealthCheck)}
}

// InitHealthChecker returns the process-wide checker served by Register.
func InitHealthChecker() *HealthChecker {
	checkerOnce.Do(func() {
		globalChecker = NewHealthChecker()
	})
	return globalChecker
}

// RegisterCheck adds check, replacing any check with the same name.
func (hc *HealthChecker) RegisterCheck(check *HealthCheck) {
	if check.Timeout <= 0 {
		check.Timeout = defaultCheckTimeout
	}
	hc.mu.Lock()
	hc.checks[check.Name] = check
	hc.mu.Unlock()
}

// Names lists the registered checks in sorted order.
func (hc *HealthChecker) Names() []string {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs every registered check concurrently, each under its own timeout.
func (hc *HealthChecker) Check(ctx context.Context) HealthResponse {
	hc.mu.RLock()
	checks := make([]*HealthCheck, 0, len(hc.checks))
	for _, c := range hc.checks {
		checks = append(checks, c)
	}
	hc.mu.RUnlock()

	results := make([]CheckStatus, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			results[i] = runCheck(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	resp := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   version,
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Checks:    make(map[string]CheckStatus, len(checks)),
		System:    systemInfo(),
	}
	for i, c := range checks {
		st := results[i]
		resp.Checks[c.Name] = st
		switch {
		case st.Status == HealthStatusUnhealthy:
			resp.Status = HealthStatusUnhealthy
		case st.Status == HealthStatusDegraded && resp.Status == HealthStatusHealthy:
			resp.Status = HealthStatusDegraded
		}
	}
	return resp
}

func runCheck(ctx context.Context, c *HealthCheck) CheckStatus {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- c.CheckFunc(ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	st := CheckStatus{Status: HealthStatusHealthy, Critical: c.Critical, Duration: time.Since(start).String()}
	if err != nil {
		st.Message = err.Error()
		st.Status = HealthStatusDegraded
		if c.Critical {
			st.Status = HealthStatusUnhealthy
		}
	}
	return st
}

func systemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return SystemInfo{
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		MemAllocMB:    m.Alloc >> 20,
	}
}

// HealthHandler serves the full report. Only an unhealthy service answers 503.
func HealthHandler(hc *HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := hc.Check(r.Context())
		code := http.StatusOK
		if resp.Status == HealthStatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, code, resp)
	}
}

// LivenessHandler answers 200 while the process is serving.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadinessHandler answers 200 unless a critical check fails.
// A degraded cache still accepts queries.
func ReadinessHandler(hc *HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hc.Check(r.Context()).Status == HealthStatusUnhealthy {
			writeStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		writeStatus(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeStatus(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// PingCheck always succeeds.
func PingCheck() *HealthCheck {
	return &HealthCheck{
		Name:      "ping",
		CheckFunc: func(context.Context) error { return nil },
		Timeout:   time.Second,
	}
}

// CacheCheck probes the reasoning response cache. Non-critical.
func CacheCheck(ping func(context.Context) error) *HealthCheck {
	return &HealthCheck{
		Name:      "llm_cache",
		CheckFunc: ping,
		Timeout:   2 * time.Second,
	}
}

// RunnerCheck reports whether the pipeline runner can still accept queries.
func RunnerCheck(ready func(context.Context) error) *HealthCheck {
	return &HealthCheck{
		Name:      "runner",
		CheckFunc: ready,
		Timeout:   time.Second,
		Critical:  true,
	}
}
