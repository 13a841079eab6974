package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_core_payments_total",
		Help: "Confirmation outcomes by provider and resulting payment status.",
	}, []string{"provider", "status"})

	FraudDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_core_fraud_decisions_total",
		Help: "Fraud engine decisions by action.",
	}, []string{"action"})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_core_events_published_total",
		Help: "Domain events published by topic and outcome.",
	}, []string{"topic", "outcome"})

	ProviderCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_core_provider_call_duration_seconds",
		Help:    "Latency of provider adapter calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "op"})
)
