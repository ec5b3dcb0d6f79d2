package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/josh-kwaku/credit-ledger/internal/metrics"
)

// Metrics must wrap the mux directly: the route pattern is only visible on
// the request the mux itself received.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(route, strconv.Itoa(rec.status/100)+"xx").
			Observe(time.Since(start).Seconds())
	})
}
