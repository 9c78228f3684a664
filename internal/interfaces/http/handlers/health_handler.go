package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthChecker is a backend the monitor can probe.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// Probe outcomes.
const (
	StatusAlive    = "alive"
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
)

// DefaultProbeTimeout bounds one readiness round.
const DefaultProbeTimeout = 5 * time.Second

// HealthHandler answers the liveness and readiness probes of a run.
type HealthHandler struct {
	backends []HealthChecker
	version  string
	started  time.Time
	timeout  time.Duration
}

// NewHealthHandler probes backends on every readiness request.
func NewHealthHandler(version string, backends ...HealthChecker) *HealthHandler {
	return &HealthHandler{
		backends: backends,
		version:  version,
		started:  time.Now(),
		timeout:  DefaultProbeTimeout,
	}
}

// RegisterRoutes mounts /healthz and /readyz on mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Liveness)
	mux.HandleFunc("GET /readyz", h.Readiness)
}

// LivenessResponse is the body of /healthz.
type LivenessResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// BackendStatus is the probe result of one backend.
type BackendStatus struct {
	Name      string  `json:"name"`
	Healthy   bool    `json:"healthy"`
	LatencyMs float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

// ReadinessResponse is the body of /readyz.  Backends are sorted by name.
type ReadinessResponse struct {
	Status   string          `json:"status"`
	Backends []BackendStatus `json:"backends"`
}

// Liveness reports 200 for as long as the process serves requests.
func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:        StatusAlive,
		Version:       h.version,
		UptimeSeconds: time.Since(h.started).Truncate(time.Millisecond).Seconds(),
	})
}

// Readiness reports 503 when any backend fails its probe.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	resp := h.Report(r.Context())
	code := http.StatusOK
	if resp.Status != StatusReady {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// Report probes every backend concurrently within the probe timeout.
func (h *HealthHandler) Report(ctx context.Context) ReadinessResponse {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	statuses := make([]BackendStatus, len(h.backends))
	var wg sync.WaitGroup
	for i, b := range h.backends {
		wg.Add(1)
		go func(i int, b HealthChecker) {
			defer wg.Done()
			start := time.Now()
			err := b.Check(ctx)
			st := BackendStatus{
				Name:      b.Name(),
				Healthy:   err == nil,
				LatencyMs: float64(time.Since(start).Microseconds()) / 1e3,
			}
			if err != nil {
				st.Error = err.Error()
			}
			statuses[i] = st
		}(i, b)
	}
	wg.Wait()

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	resp := ReadinessResponse{Status: StatusReady, Backends: statuses}
	for _, st := range statuses {
		if !st.Healthy {
			resp.Status = StatusNotReady
			break
		}
	}
	return resp
}
