package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ordercore_orders_created_total",
			Help: "Orders committed, by payment method",
		},
		[]string{"payment_method"},
	)

	ordersCanceled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ordercore_orders_canceled_total",
			Help: "Orders canceled by their owner",
		},
	)

	checkoutConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ordercore_checkout_conflicts_total",
			Help: "Checkouts aborted by a lost race, by resource",
		},
		[]string{"resource"},
	)

	discountRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ordercore_discount_rejections_total",
			Help: "Discount codes refused, by reason",
		},
		[]string{"reason"},
	)

	paymentGatewayFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ordercore_payment_gateway_failures_total",
			Help: "Payment gateway calls that failed after commit, by operation",
		},
		[]string{"operation"},
	)
)
