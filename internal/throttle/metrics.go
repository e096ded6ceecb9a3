package throttle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	sourceRedis      = "redis"
	sourceLocal      = "local"
	sourceFailOpen   = "fail_open"
	sourceFailClosed = "fail_closed"

	resultAllowed  = "allowed"
	resultRejected = "rejected"
)

var decisions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ordercore_throttle_decisions_total",
		Help: "Checkout throttle decisions, by source and result",
	},
	[]string{"source", "result"},
)

func result(d Decision) string {
	if d.Allowed {
		return resultAllowed
	}
	return resultRejected
}
