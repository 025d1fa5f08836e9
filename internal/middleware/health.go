package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const (
	healthTimeout = 5 * time.Second
	pingTimeout   = 2 * time.Second
)

type HealthChecker interface {
	Check(ctx context.Context) error
}

// PingChecker turns a store's Ping into a HealthChecker.
type PingChecker func(ctx context.Context) error

func (p PingChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return p(ctx)
}

// HealthReport is the /healthz body. Checks is keyed by checker name.
type HealthReport struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthHandler runs the checkers in turn; one failure makes the answer 503.
func HealthHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		report := HealthReport{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Checks:    make(map[string]CheckResult, len(checkers)),
		}
		for name, checker := range checkers {
			res := CheckResult{Status: "healthy"}
			if err := checker.Check(ctx); err != nil {
				res = CheckResult{Status: "unhealthy", Message: err.Error()}
				report.Status = "unhealthy"
			}
			report.Checks[name] = res
		}

		status := http.StatusOK
		if report.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	}
}

// LivenessHandler answers {"status":"ok"} without touching the store.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
