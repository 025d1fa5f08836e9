package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// counters behind /metrics; process-wide
var (
	startedAt = time.Now()

	requestsTotal    atomic.Uint64
	requestsInFlight atomic.Int64
	requestsOK       atomic.Uint64
	requestsFailed   atomic.Uint64

	analysesTotal   atomic.Uint64
	analysesRunning atomic.Int64
	analysesFailed  atomic.Uint64
	predictions     atomic.Uint64
)

// StartAnalysis counts a dump analysis and marks it running. Call the
// returned func with the outcome once the analysis ends.
func StartAnalysis() func(err error) {
	analysesTotal.Add(1)
	analysesRunning.Add(1)
	return func(err error) {
		analysesRunning.Add(-1)
		if err != nil {
			analysesFailed.Add(1)
		}
	}
}

func IncrementPredictions() {
	predictions.Add(1)
}

// Snapshot reads every counter plus runtime memory stats.
func Snapshot() map[string]any {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return map[string]any{
		"requests_total":       requestsTotal.Load(),
		"requests_in_progress": requestsInFlight.Load(),
		"requests_success":     requestsOK.Load(),
		"requests_failed":      requestsFailed.Load(),
		"analyses_total":       analysesTotal.Load(),
		"analyses_running":     analysesRunning.Load(),
		"analyses_failed":      analysesFailed.Load(),
		"predictions_total":    predictions.Load(),
		"uptime_seconds":       time.Since(startedAt).Seconds(),
		"goroutines":           runtime.NumGoroutine(),
		"memory": map[string]any{
			"alloc_bytes":       mem.Alloc,
			"total_alloc_bytes": mem.TotalAlloc,
			"sys_bytes":         mem.Sys,
			"num_gc":            mem.NumGC,
		},
	}
}

// MetricsMiddleware counts requests; 4xx and 5xx answers count as failed.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestsTotal.Add(1)
		requestsInFlight.Add(1)
		defer requestsInFlight.Add(-1)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode < 400 {
			requestsOK.Add(1)
		} else {
			requestsFailed.Add(1)
		}
	})
}

func MetricsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Snapshot())
}
