package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Delivery attempts partitioned by email kind and outcome
	emailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholarship_emails_total",
			Help: "Outbound email delivery attempts",
		},
		[]string{"kind", "status"},
	)

	// Drip emails sent, partitioned by the stage they were sent for
	sequenceSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholarship_sequence_sends_total",
			Help: "Drip sequence emails sent per stage",
		},
		[]string{"stage"},
	)

	cycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scholarship_worker_cycle_duration_seconds",
			Help:    "Duration of a full worker cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Cycles partitioned by outcome: ok, error, busy
	cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholarship_worker_cycles_total",
			Help: "Worker cycles by outcome",
		},
		[]string{"result"},
	)
)
