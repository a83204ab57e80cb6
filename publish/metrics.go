package publish

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "veilcore_publish_queue_depth",
		Help: "Number of tasks buffered in the publish queue.",
	})

	metricDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veilcore_publish_dispatched_total",
		Help: "Envelopes handed to the transport, by priority class.",
	}, []string{"priority"})

	metricCleared = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veilcore_publish_cleared_total",
		Help: "Tasks rejected by Clear before dispatch.",
	})

	metricRelayFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veilcore_publish_relay_failures_total",
		Help: "Per-relay publish failures reported by the transport.",
	})
)
