package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/serge-chat/stackd/pkg/logger"
)

var (
	// InstallDuration tracks the time spent installing the inference runtime wheel.
	InstallDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "stackd_install_duration_seconds",
		Help: "Time spent installing the llama-cpp-python wheel",
	})
	// ChildExitsTotal counts child exits, partitioned by role and outcome.
	ChildExitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stackd_child_exits_total",
		Help: "Total child process exits",
	}, []string{"role", "outcome"})
	// StateTransitionsTotal counts supervisor state transitions by target state.
	StateTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stackd_state_transitions_total",
		Help: "Total supervisor state transitions",
	}, []string{"state"})
)

// InitMetrics registers Prometheus metrics and starts an HTTP server to expose them.
// It takes an address string (e.g., ":9090") on which to listen for requests.
func InitMetrics(addr string) {
	prometheus.MustRegister(InstallDuration)
	prometheus.MustRegister(ChildExitsTotal)
	prometheus.MustRegister(StateTransitionsTotal)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		logger.Log.Info("Metrics server starting", "addr", addr)
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Log.Error("Metrics server failed", "err", err)
		}
	}()
}

// Personal.AI order the ending
