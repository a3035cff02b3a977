package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RSVP holds the counters recorded by the RSVP service.
type RSVP struct {
	// Outcomes counts completed operations by operation and resulting state.
	Outcomes *prometheus.CounterVec
	// Promotions counts waitlisted records promoted to GOING.
	Promotions prometheus.Counter
	// PublishFailures counts events that could not be delivered after commit.
	PublishFailures prometheus.Counter
}

// Registry wraps the process registry and the collectors registered on it.
type Registry struct {
	reg  *prometheus.Registry
	RSVP *RSVP
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{
		reg: reg,
		RSVP: &RSVP{
			Outcomes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
				Name: "rsvp_operations_total",
				Help: "Total number of RSVP operations by operation and resulting state.",
			}, []string{"op", "state"}),
			Promotions: promauto.With(reg).NewCounter(prometheus.CounterOpts{
				Name: "rsvp_waitlist_promotions_total",
				Help: "Total number of waitlisted RSVPs promoted to going.",
			}),
			PublishFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
				Name: "rsvp_event_publish_failures_total",
				Help: "Total number of RSVP events that failed to publish.",
			}),
		},
	}
}

// Handler exposes the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Gatherer is exposed for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
