// Prometheus counters for the message intake pipeline. Labels are kept to
// the tenant id only; group ids would blow up cardinality.
package wa

import "github.com/prometheus/client_golang/prometheus"

var (
	messagesStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_messages_stored_total",
			Help: "Inbound group messages that passed the filter and were stored.",
		},
		[]string{"user"},
	)

	messagesFiltered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_messages_filtered_total",
			Help: "Inbound group messages rejected by the relevance filter.",
		},
		[]string{"user"},
	)

	messagesDuplicate = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_messages_duplicate_total",
			Help: "Inbound group messages dropped as content-hash duplicates.",
		},
		[]string{"user"},
	)

	reconnectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_reconnect_attempts_total",
			Help: "Reconnect attempts after transient connection failures.",
		},
		[]string{"user"},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wa_sessions_active",
			Help: "Tenant sessions currently held by the registry.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		messagesStored,
		messagesFiltered,
		messagesDuplicate,
		reconnectAttempts,
		sessionsActive,
	)
}
