package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics stores process-wide counters.
type Metrics struct {
	RequestsTotal      uint64
	RequestsInProgress uint64
	RequestsSuccess    uint64
	RequestsFailed     uint64
	RateLimited        uint64
	AnalysesTotal      uint64
	AnalysesFailed     uint64
	StartTime          time.Time

	mu        sync.Mutex
	byStorage map[string]uint64
	byLabel   map[string]uint64
}

var globalMetrics = newMetrics()

func newMetrics() *Metrics {
	return &Metrics{
		StartTime: time.Now(),
		byStorage: map[string]uint64{},
		byLabel:   map[string]uint64{},
	}
}

func IncrementRequests()     { atomic.AddUint64(&globalMetrics.RequestsTotal, 1) }
func IncrementInProgress()   { atomic.AddUint64(&globalMetrics.RequestsInProgress, 1) }
func DecrementInProgress()   { atomic.AddUint64(&globalMetrics.RequestsInProgress, ^uint64(0)) }
func IncrementSuccess()      { atomic.AddUint64(&globalMetrics.RequestsSuccess, 1) }
func IncrementFailed()       { atomic.AddUint64(&globalMetrics.RequestsFailed, 1) }
func IncrementRateLimited()  { atomic.AddUint64(&globalMetrics.RateLimited, 1) }
func IncrementAnalysisFail() { atomic.AddUint64(&globalMetrics.AnalysesFailed, 1) }

// RecordAnalysis counts a finished analysis by primary label and storage
// status. storage is empty for anonymous callers.
func RecordAnalysis(label, storage string) {
	atomic.AddUint64(&globalMetrics.AnalysesTotal, 1)
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.byLabel[label]++
	if storage == "" {
		storage = "anonymous"
	}
	globalMetrics.byStorage[storage]++
}

func GetMetrics() map[string]any {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	globalMetrics.mu.Lock()
	byLabel := make(map[string]uint64, len(globalMetrics.byLabel))
	for k, v := range globalMetrics.byLabel {
		byLabel[k] = v
	}
	byStorage := make(map[string]uint64, len(globalMetrics.byStorage))
	for k, v := range globalMetrics.byStorage {
		byStorage[k] = v
	}
	globalMetrics.mu.Unlock()

	return map[string]any{
		"requests_total":        atomic.LoadUint64(&globalMetrics.RequestsTotal),
		"requests_in_progress":  atomic.LoadUint64(&globalMetrics.RequestsInProgress),
		"requests_success":      atomic.LoadUint64(&globalMetrics.RequestsSuccess),
		"requests_failed":       atomic.LoadUint64(&globalMetrics.RequestsFailed),
		"requests_rate_limited": atomic.LoadUint64(&globalMetrics.RateLimited),
		"analyses_total":        atomic.LoadUint64(&globalMetrics.AnalysesTotal),
		"analyses_failed":       atomic.LoadUint64(&globalMetrics.AnalysesFailed),
		"analyses_by_label":     byLabel,
		"analyses_by_storage":   byStorage,
		"uptime_seconds":        time.Since(globalMetrics.StartTime).Seconds(),
		"memory": map[string]any{
			"alloc_bytes":       m.Alloc,
			"total_alloc_bytes": m.TotalAlloc,
			"sys_bytes":         m.Sys,
			"num_gc":            m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// MetricsMiddleware tracks request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		IncrementRequests()
		IncrementInProgress()
		defer DecrementInProgress()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			IncrementSuccess()
		} else {
			IncrementFailed()
		}
	})
}

func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(GetMetrics())
}
