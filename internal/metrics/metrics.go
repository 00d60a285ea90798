package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookEventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commissary_webhook_events_received_total",
		Help: "Total number of webhook deliveries received, labelled by outcome.",
	}, []string{"outcome"})

	SalesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commissary_sales_recorded_total",
		Help: "Total number of sales written to the ledger.",
	})

	DuplicateDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commissary_duplicate_deliveries_total",
		Help: "Total number of deliveries recognized as already processed.",
	})

	ReconcileItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commissary_reconcile_items_total",
		Help: "Total number of catalog candidates handled, labelled by result.",
	}, []string{"result"})

	LedgerWriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "commissary_ledger_write_duration_ms",
		Help:    "Sale ledger write latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
)
