package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RechargesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recharge_attempts_created_total",
		Help: "Recharge attempts that reached PENDING.",
	})

	RechargesSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recharge_attempts_settled_total",
		Help: "Recharge attempts by terminal outcome.",
	}, []string{"outcome"})

	GatewayErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recharge_gateway_errors_total",
		Help: "Upstream gateway failures by operation.",
	}, []string{"op"})

	CreditFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recharge_credit_failures_total",
		Help: "Approved payments whose balance credit failed. Requires manual reconciliation.",
	})
)
