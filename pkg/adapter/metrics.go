package adapter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var callCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "agentgate",
	Name:      "adapter_calls_total",
	Help:      "Count of upstream API calls by service and outcome.",
}, []string{"service", "outcome"})

var callLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "agentgate",
	Name:      "adapter_call_duration_seconds",
	Help:      "Latency of successful upstream API calls.",
	Buckets:   prometheus.DefBuckets,
}, []string{"service"})
