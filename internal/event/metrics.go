package event

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var outboxPublished = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ordercore_outbox_events_total",
		Help: "Outbox events processed by the relay, by event type and result",
	},
	[]string{"event_type", "result"},
)
