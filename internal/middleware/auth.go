package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

const apiKeyCtxKey contextKey = "api_key"

// AcceptedAPIKey returns the key APIKeyAuth validated for this request, or ""
// when the gate is open or did not run.
func AcceptedAPIKey(ctx context.Context) string {
	key, _ := ctx.Value(apiKeyCtxKey).(string)
	return key
}

// apiKeyFrom reads the key from X-API-Key or "Authorization: Bearer <key>".
func apiKeyFrom(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

// APIKeyAuth accepts requests carrying one of validKeys. With no keys
// configured the gate is open.
func APIKeyAuth(validKeys []string) func(http.Handler) http.Handler {
	keys := make([][]byte, 0, len(validKeys))
	for _, k := range validKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := apiKeyFrom(r)
			if apiKey == "" {
				writeDetail(w, http.StatusUnauthorized, "missing API key")
				return
			}

			// constant-time comparison
			valid := false
			for _, key := range keys {
				if subtle.ConstantTimeCompare([]byte(apiKey), key) == 1 {
					valid = true
				}
			}
			if !valid {
				writeDetail(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), apiKeyCtxKey, apiKey)))
		})
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
