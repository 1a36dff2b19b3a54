package middleware

import (
	"crypto/subtle"
	"net/http"

	"stocktake-api/pkg/apierror"
	"stocktake-api/pkg/response"
)

// APIKeyAuth checks the X-API-Key header against the configured keys.
// An empty key list disables authentication entirely, which is the
// development default.
func APIKeyAuth(keys []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(keys) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get("X-API-Key")
			if provided == "" {
				response.Error(w, apierror.Unauthorized("API key required"))
				return
			}

			for _, key := range keys {
				if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}

			response.Error(w, apierror.Unauthorized("invalid API key"))
		})
	}
}
