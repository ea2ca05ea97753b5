// Package metrics exposes Prometheus counters for the credits core.
// Served at /metrics by the API router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Spends counts SpendAndUnlock outcomes by result
// (success, already_owned, insufficient_balance, item_not_found, error).
var Spends = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "credits",
	Name:      "spends_total",
	Help:      "SpendAndUnlock operations by result.",
}, []string{"result"})

// Grants counts GrantFromPurchase outcomes by result
// (success, replayed, partial, item_not_found, error).
var Grants = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "credits",
	Name:      "grants_total",
	Help:      "GrantFromPurchase operations by result.",
}, []string{"result"})

// Rollbacks counts compensating ledger entries appended after a debit
// could not keep its entitlement.
var Rollbacks = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "credits",
	Name:      "rollbacks_total",
	Help:      "Compensating ledger entries appended.",
})

// ReceiptReplays counts purchase notifications answered from the
// idempotency guard without re-applying mutations.
var ReceiptReplays = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "credits",
	Name:      "receipt_replays_total",
	Help:      "Duplicate purchase receipts served idempotently.",
})
