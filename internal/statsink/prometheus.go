package statsink

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus records newly-seen-service events as a counter, plus tracks a
// de-duplicating set so repeated admissions of the same fingerprint within
// a process lifetime only count the first time as "new" — mirroring the
// teacher's NewMetrics()/promauto registration style in
// internal/escrow/metrics.go.
type Prometheus struct {
	mu   sync.Mutex
	seen map[string]struct{}

	storedTotal *prometheus.CounterVec
	newTotal    prometheus.Counter
}

func NewPrometheus() *Prometheus {
	return &Prometheus{
		seen: make(map[string]struct{}),
		storedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rendcache_descriptor_stored_total",
			Help: "Directory-path descriptor admissions, by whether the service was already known.",
		}, []string{"new"}),
		newTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rendcache_service_first_seen_total",
			Help: "Distinct services observed for the first time by this process.",
		}),
	}
}

func (p *Prometheus) NoteStoredMaybeNew(fingerprint string) {
	p.mu.Lock()
	_, known := p.seen[fingerprint]
	if !known {
		p.seen[fingerprint] = struct{}{}
	}
	p.mu.Unlock()

	if known {
		p.storedTotal.WithLabelValues("false").Inc()
		return
	}
	p.storedTotal.WithLabelValues("true").Inc()
	p.newTotal.Inc()
}
