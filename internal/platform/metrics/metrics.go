package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	UsersCreated          prometheus.Counter
	VerificationsCreated  prometheus.Counter
	VerificationsAssigned prometheus.Counter
	VerificationsDecided  *prometheus.CounterVec
	EventsPublished       *prometheus.CounterVec
	EventPublishFailures  *prometheus.CounterVec
	AssignerRuns          prometheus.Counter
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		UsersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "userapi_users_created_total",
			Help: "Total number of users created in the system",
		}),
		VerificationsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "userapi_verification_requests_created_total",
			Help: "Total number of verification requests submitted",
		}),
		VerificationsAssigned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "userapi_verification_requests_assigned_total",
			Help: "Total number of accountable assignments performed",
		}),
		VerificationsDecided: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "userapi_verification_requests_decided_total",
			Help: "Total number of inspected verification requests by outcome",
		}, []string{"outcome"}),
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "userapi_events_published_total",
			Help: "Total number of domain events handed to the broker",
		}, []string{"type"}),
		EventPublishFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "userapi_event_publish_failures_total",
			Help: "Total number of event publishes that failed after retries",
		}, []string{"type"}),
		AssignerRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "userapi_assigner_runs_total",
			Help: "Total number of background assigner sweeps",
		}),
	}
}
