package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "moodleherald"

var (
	pollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "cycles_total",
			Help:      "Completed poll cycles by verdict",
		},
		[]string{"verdict"},
	)

	fetchRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "fetch_retries_total",
			Help:      "Failed fetch attempts that were retried",
		},
	)
)

func recordPollCycle(verdict string) {
	pollCycles.WithLabelValues(verdict).Inc()
}

func recordFetchRetry() {
	fetchRetries.Inc()
}
