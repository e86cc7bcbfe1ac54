package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values
const (
	StatusSuccess  = "success"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
)

// Metrics for monitoring
var (
	IntentsSigned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shield_intents_signed_total",
		Help: "The total number of intent signing attempts by outcome",
	}, []string{"status"})

	IntentsBuilt = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shield_intents_built_total",
		Help: "The total number of intents built, each consuming one nonce",
	})

	SigningTime = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shield_signing_seconds",
		Help:    "Time taken by the signer to return a signature",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms up to ~4 minutes for interactive approval
	})

	// InvalidRequests counts requests rejected before a nonce was allocated
	InvalidRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shield_invalid_requests_total",
		Help: "Total number of trade requests rejected by validation",
	}, []string{"reason"})

	LastNonce = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shield_session_last_nonce",
		Help: "The last nonce allocated in the current session",
	})

	SessionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "shield_session_status",
		Help: "1 for the current local session status, 0 otherwise",
	}, []string{"status"})

	// Broker related metrics
	BrokerSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shield_broker_submissions_total",
		Help: "Total number of signed intents handed to the broker by outcome",
	}, []string{"status"})

	BrokerCircuitOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shield_broker_circuit_open",
		Help: "1 while the broker circuit breaker is open",
	})
)

// SetSessionStatus marks status as the only active value of the session status gauge
func SetSessionStatus(status string, all []string) {
	for _, s := range all {
		value := 0.0
		if s == status {
			value = 1
		}
		SessionStatus.WithLabelValues(s).Set(value)
	}
}
