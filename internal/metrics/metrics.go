// Package metrics holds the gateway's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_gateway"

var (
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_requests_total",
		Help:      "Provider attempts by outcome (ok, timeout, error, circuit_open, skipped).",
	}, []string{"provider", "outcome"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_latency_seconds",
		Help:      "Latency of provider calls that were actually issued.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	}, []string{"provider"})

	QuotaDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quota_decisions_total",
		Help:      "Quota checks by result (allowed, denied, unlimited).",
	}, []string{"result"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Response cache lookups by result (hit, miss, error).",
	}, []string{"result"})

	UsageDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "usage_entries_dropped_total",
		Help:      "Usage log entries dropped because the buffer was full or the flush failed.",
	})
)
