// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RowsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waleopard_rows_ingested_total",
		Help: "Batch rows parsed and persisted.",
	})

	RecipientsMaterialized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waleopard_recipients_materialized_total",
		Help: "Recipients successfully materialized from batch rows.",
	})

	RecipientsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waleopard_recipients_skipped_total",
		Help: "Batch rows rejected during materialization.",
	}, []string{"reason"})

	JobsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waleopard_jobs_claimed_total",
		Help: "Outbound jobs claimed by the send worker.",
	})

	Sends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waleopard_sends_total",
		Help: "Provider send attempts by outcome.",
	}, []string{"provider", "outcome"})

	SendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "waleopard_send_duration_seconds",
		Help:    "Duration of a single provider send attempt.",
		Buckets: prometheus.DefBuckets,
	})
)
