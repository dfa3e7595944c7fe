package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// backendStateGauge is 1 for the current state/backend pair and 0 for
	// every other state.
	// Labels: state (unconfigured, probing, primary, fallback), backend
	backendStateGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "backend_state",
			Help:      "Current backend state of the vector store (1=current)",
		},
		[]string{"state", "backend"},
	)

	// chunksGauge tracks how many chunks the in-memory index holds.
	chunksGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "chunks",
			Help:      "Number of chunks held by the vector store",
		},
	)

	// degradesTotal counts primary-to-fallback switches.
	// Labels: backend (the primary that failed)
	degradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "degrades_total",
			Help:      "Total number of switches from the primary to the fallback backend",
		},
		[]string{"backend"},
	)
)

func recordState(state BackendState, backend string) {
	backendStateGauge.Reset()
	backendStateGauge.WithLabelValues(state.String(), backend).Set(1)
}
