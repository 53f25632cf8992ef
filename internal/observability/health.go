package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"
)

// Build-time variables injected via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// HealthResponse is the liveness body.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// ReadinessResponse is the readiness body.
type ReadinessResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// CheckResult is the outcome of one readiness check.
type CheckResult struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthChecker can verify its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ReadinessChecks are the console's readiness checks. DefinitionsLoaded
// always runs and a nil func counts as not loaded; Backend and SessionStore
// run only when set.
type ReadinessChecks struct {
	DefinitionsLoaded func() bool
	Backend           HealthChecker
	SessionStore      HealthChecker
}

const checkTimeout = 2 * time.Second

var errNoDefinitions = errors.New("no definitions loaded")

type readinessCheck func(ctx context.Context) error

func (c ReadinessChecks) list() map[string]readinessCheck {
	list := map[string]readinessCheck{
		"definitions": func(context.Context) error {
			if c.DefinitionsLoaded == nil || !c.DefinitionsLoaded() {
				return errNoDefinitions
			}
			return nil
		},
	}
	if c.Backend != nil {
		list["backend"] = c.Backend.HealthCheck
	}
	if c.SessionStore != nil {
		list["session_store"] = c.SessionStore.HealthCheck
	}
	return list
}

// HandleHealth answers liveness with the build version.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeHealthJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: Version, Commit: Commit})
	}
}

// HandleReady runs every check concurrently, each under its own timeout,
// and answers 503 when any of them fails.
func HandleReady(checks ReadinessChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending := checks.list()
		results := make(map[string]CheckResult, len(pending))
		var mu sync.Mutex
		var wg sync.WaitGroup
		for name, check := range pending {
			wg.Go(func() {
				res := runCheck(r.Context(), check)
				mu.Lock()
				results[name] = res
				mu.Unlock()
			})
		}
		wg.Wait()

		resp := ReadinessResponse{Status: "ready", Checks: results}
		status := http.StatusOK
		for _, res := range results {
			if res.Status != "ok" {
				resp.Status = "not_ready"
				status = http.StatusServiceUnavailable
				break
			}
		}
		writeHealthJSON(w, status, resp)
	}
}

func runCheck(parent context.Context, check readinessCheck) CheckResult {
	ctx, cancel := context.WithTimeout(parent, checkTimeout)
	defer cancel()

	start := time.Now()
	err := check(ctx)
	res := CheckResult{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
	}
	return res
}

func writeHealthJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
