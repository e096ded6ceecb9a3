package idempotency

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultStored     = "stored"
	resultReleased   = "released"
	resultReplayed   = "replayed"
	resultInProgress = "in_progress"
	resultMismatch   = "mismatch"
	resultStoreError = "store_error"
)

var idempotencyResults = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ordercore_idempotency_requests_total",
		Help: "Requests carrying an Idempotency-Key, by outcome",
	},
	[]string{"result"},
)
