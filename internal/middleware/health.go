package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthChecker is implemented by every dependency with a Check method
// (remote repository, local store, artifact store).
type HealthChecker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to HealthChecker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks"`
}

type CheckStatus struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

// Check is a named dependency check. Optional checks report their state
// but only degrade the overall status, they never fail it.
type Check struct {
	Checker  HealthChecker
	Optional bool
}

// HealthHandler runs all checks. The local store is required, the remote
// database is optional because the service keeps working on the fallback.
func HealthHandler(checks map[string]Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := HealthStatus{
			Status:    "healthy",
			Timestamp: time.Now(),
			Checks:    make(map[string]CheckStatus, len(checks)),
		}

		for name, c := range checks {
			if err := c.Checker.Check(ctx); err != nil {
				health.Checks[name] = CheckStatus{Status: "unhealthy", Message: err.Error(), Optional: c.Optional}
				switch {
				case !c.Optional:
					health.Status = "unhealthy"
				case health.Status == "healthy":
					health.Status = "degraded"
				}
				continue
			}
			health.Checks[name] = CheckStatus{Status: "healthy", Optional: c.Optional}
		}

		statusCode := http.StatusOK
		if health.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(health)
	}
}

func ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
