package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "contestbot"

// Entry outcomes.
const (
	OutcomeAccepted  = "accepted"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

var (
	registerOnce sync.Once

	entries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "entries_total",
			Help:      "Confirm attempts by outcome.",
		},
		[]string{"outcome"},
	)
	membershipChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "membership_checks_total",
			Help:      "Promo channel membership queries by result.",
		},
		[]string{"result"},
	)
	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "messages_total",
			Help:      "Outbound deliveries by recipient role and status.",
		},
		[]string{"recipient", "status"},
	)
	adminMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admin",
			Name:      "mutations_total",
			Help:      "Admin control plane mutations by operation and status.",
		},
		[]string{"operation", "status"},
	)
)

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(entries, membershipChecks, deliveries, adminMutations)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordEntry(outcome string) {
	entries.WithLabelValues(outcome).Inc()
}

func RecordMembership(result string) {
	membershipChecks.WithLabelValues(result).Inc()
}

func RecordDelivery(recipient string, err error) {
	deliveries.WithLabelValues(recipient, status(err)).Inc()
}

func RecordAdminMutation(operation string, err error) {
	adminMutations.WithLabelValues(operation, status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
