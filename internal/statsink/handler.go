package statsink

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler exposes the process's Prometheus registry on /metrics,
// regardless of which Sink backend is active — the registry is global, so
// this reports rendcache's counters whenever the prometheus backend is
// selected and only the default Go runtime and process metrics otherwise.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
