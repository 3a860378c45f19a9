package middleware

import (
	"encoding/json"
	"mime"
	"net/http"
)

// RequireJSON rejects requests whose body is not declared as JSON
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "application/json" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnsupportedMediaType)
			json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"code":    "INVALID_INPUT",
				"error":   "Content-Type must be application/json",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
