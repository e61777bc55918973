package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_mutations_total",
			Help: "Cart mutations applied, by operation",
		},
		[]string{"op"},
	)

	rejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_rejected_total",
			Help: "Cart mutations rejected as no-ops, by operation and reason",
		},
		[]string{"op", "reason"},
	)

	persistFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_cart_persist_failures_total",
			Help: "Cart snapshot writes that failed; in-memory state stayed authoritative",
		},
	)

	snapshotDiscardedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_cart_snapshot_discarded_total",
			Help: "Persisted cart snapshots that could not be read and were replaced by an empty cart",
		},
	)
)
