package middlewares

import (
	"crypto/subtle"
	"net/http"

	"github.com/LexiconIndonesia/creator-crawler-service/common/utils"
	"github.com/rs/zerolog/log"
)

const apiKeyHeader = "X-API-KEY"

// ApiKey rejects requests whose X-API-KEY header does not match key. An empty
// key disables the check.
func ApiKey(key string) func(http.Handler) http.Handler {
	if key == "" {
		log.Warn().Msg("BACKEND_API_KEY is not set, API key check disabled")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			got := r.Header.Get(apiKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				log.Warn().Str("path", r.URL.Path).Str("remote", r.RemoteAddr).Msg("Rejected request with invalid API key")
				utils.WriteError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
