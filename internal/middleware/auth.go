package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

const OwnerKey contextKey = "owner"

// OwnerHeader carries the caller id when no API keys are configured.
const OwnerHeader = "X-User-ID"

var publicPaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/live":    true,
	"/metrics": true,
}

// OwnerAuth resolves the caller of a request.
//
// validKeys maps owner id to API key. When it is empty the X-User-ID header
// is trusted as-is and requests without it stay anonymous. When keys are
// configured, a request carrying X-API-Key or a Bearer token must match
// one of them; requests without any key stay anonymous.
func OwnerAuth(validKeys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			if len(validKeys) == 0 {
				owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
				if owner != "" {
					if err := ValidateOwnerID(owner); err != nil {
						writeJSONError(w, http.StatusBadRequest, err.Error())
						return
					}
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), OwnerKey, owner)))
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(auth, "Bearer ") {
					apiKey = strings.TrimPrefix(auth, "Bearer ")
				}
			}
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			owner := ""
			for o, key := range validKeys {
				if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
					owner = o
					break
				}
			}
			if owner == "" {
				writeJSONError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), OwnerKey, owner)))
		})
	}
}

// OwnerFromContext returns the resolved owner id, empty for anonymous callers.
func OwnerFromContext(ctx context.Context) string {
	if owner, ok := ctx.Value(OwnerKey).(string); ok {
		return owner
	}
	return ""
}

// RequireOwner rejects anonymous callers.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if OwnerFromContext(r.Context()) == "" {
			writeJSONError(w, http.StatusUnauthorized, "User authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
