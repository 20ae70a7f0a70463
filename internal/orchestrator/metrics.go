package orchestrator

import "github.com/prometheus/client_golang/prometheus"

var (
	loadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gend",
			Subsystem: "orchestrator",
			Name:      "loads_total",
			Help:      "Total number of successful model resource loads",
		},
	)

	loadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "gend",
			Subsystem: "orchestrator",
			Name:      "load_duration_seconds",
			Help:      "Duration of model resource loads in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
	)

	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gend",
			Subsystem: "orchestrator",
			Name:      "generations_total",
			Help:      "Total number of generation sessions by outcome",
		},
		[]string{"outcome"},
	)

	fragmentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gend",
			Subsystem: "orchestrator",
			Name:      "fragments_total",
			Help:      "Total number of streamed fragments",
		},
	)

	interruptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gend",
			Subsystem: "orchestrator",
			Name:      "interrupts_total",
			Help:      "Total number of interrupt commands received",
		},
	)

	errorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gend",
			Subsystem: "orchestrator",
			Name:      "command_errors_total",
			Help:      "Total number of commands that ended in an error event",
		},
	)

	sessionTPS = prometheus.NewSummary(
		prometheus.SummaryOpts{
			Namespace:  "gend",
			Subsystem:  "orchestrator",
			Name:       "session_tokens_per_second",
			Help:       "Per-session generation throughput in fragments per second",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
	)
)

func init() {
	prometheus.MustRegister(loadsTotal, loadDuration, generationsTotal, fragmentsTotal, interruptsTotal, errorsTotal, sessionTPS)
}
