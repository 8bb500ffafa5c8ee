package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimits holds the per-IP request budgets for the three admission
// classes. A zero budget disables the class entirely.
type RateLimits struct {
	// DefaultPerMin applies to everything not otherwise classified.
	DefaultPerMin int
	// SubmitPerMin applies to full-pipeline submissions, which tie up a
	// worker for minutes and deserve the tightest budget.
	SubmitPerMin int
	// DownloadPerMin applies to download-only submissions.
	DownloadPerMin int
}

// exemptPrefixes are never rate limited: polling status must stay cheap for
// clients, and health probes come from orchestrators on their own schedule.
var exemptPrefixes = []string{
	"/api/v1/status/",
	"/api/v1/languages",
	"/api/v1/models",
	"/api/v1/translation-services",
	"/api/v1/features",
	"/health",
}

var submitPaths = map[string]bool{
	"/api/v1/remote": true,
	"/api/v1/upload": true,
}

// RateLimit returns a middleware that applies a sliding-window per-IP limit,
// classified by path: submissions strict, download-only submissions looser,
// status/metadata/health exempt, everything else on the default budget.
func RateLimit(limits RateLimits) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		defaultLimited := limited(limits.DefaultPerMin, next)
		submitLimited := limited(limits.SubmitPerMin, next)
		downloadLimited := limited(limits.DownloadPerMin, next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			for _, prefix := range exemptPrefixes {
				if strings.HasPrefix(path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			switch {
			case submitPaths[path]:
				submitLimited.ServeHTTP(w, r)
			case path == "/api/v1/download-only":
				downloadLimited.ServeHTTP(w, r)
			default:
				defaultLimited.ServeHTTP(w, r)
			}
		})
	}
}

// limited wraps next with a per-IP sliding window limiter. A zero budget
// means unlimited.
func limited(perMin int, next http.Handler) http.Handler {
	if perMin <= 0 {
		return next
	}
	return httprate.Limit(
		perMin,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(time.Minute.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"code":"RateLimited","message":"too many requests"}`))
		}),
	)(next)
}
