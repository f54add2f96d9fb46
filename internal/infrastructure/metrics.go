package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the license protocol. The
// abuse counters are labeled by endpoint class and rejection reason so
// dashboards can separate penalty-box hits from freshly exceeded limits.
type Metrics struct {
	RateLimitRejections  *prometheus.CounterVec
	RateLimitFailOpen    prometheus.Counter
	SignatureRejections  *prometheus.CounterVec
	ActivationResults    *prometheus.CounterVec
	RateLimitRecordCount prometheus.Gauge
}

// NewMetrics registers the protocol metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RateLimitRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "licensegate",
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by the sliding-window rate limiter.",
		}, []string{"endpoint", "reason"}),
		RateLimitFailOpen: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "licensegate",
			Name:      "rate_limit_fail_open_total",
			Help:      "Requests allowed through after an internal limiter error.",
		}),
		SignatureRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "licensegate",
			Name:      "signature_rejections_total",
			Help:      "Requests rejected by the request-signature verifier.",
		}, []string{"endpoint"}),
		ActivationResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "licensegate",
			Name:      "activation_results_total",
			Help:      "Activation and check-in outcomes by rejection reason.",
		}, []string{"endpoint", "result"}),
		RateLimitRecordCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "licensegate",
			Name:      "rate_limit_records",
			Help:      "Live records in the in-memory rate-limit table.",
		}),
	}
}
