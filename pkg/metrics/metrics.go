package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "backoffice", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "backoffice", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	CallsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "backoffice", Subsystem: "telemarketing", Name: "calls_started_total", Help: "Calls placed, by how the prospect was picked (manual, queue, auto)."},
		[]string{"trigger"},
	)
	Dispositions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "backoffice", Subsystem: "telemarketing", Name: "dispositions_total", Help: "Recorded call dispositions by prospect status."},
		[]string{"status"},
	)
	SessionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "backoffice", Subsystem: "telemarketing", Name: "session_transitions_total", Help: "Call session state transitions."},
		[]string{"transition"},
	)
	CallDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: "backoffice", Subsystem: "telemarketing", Name: "call_duration_seconds", Help: "Duration of completed calls.", Buckets: []float64{15, 30, 60, 120, 300, 600, 1200}},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(CallsStarted)
	reg.MustRegister(Dispositions)
	reg.MustRegister(SessionTransitions)
	reg.MustRegister(CallDuration)
}
