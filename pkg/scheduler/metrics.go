package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	cycles        prometheus.Counter
	lateCycles    prometheus.Counter
	cycleDuration prometheus.Histogram
	executed      *prometheus.CounterVec
	failures      *prometheus.CounterVec
}

// newMetrics создает метрики планировщика. При nil registerer метрики
// не регистрируются, но продолжают считаться.
func newMetrics(registerer prometheus.Registerer) *metrics {
	factory := promauto.With(registerer)
	return &metrics{
		cycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "media",
			Subsystem: "scheduler",
			Name:      "cycles_total",
			Help:      "Число выполненных проходов по очередям",
		}),
		lateCycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "media",
			Subsystem: "scheduler",
			Name:      "late_cycles_total",
			Help:      "Число проходов, не уложившихся в период",
		}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "media",
			Subsystem: "scheduler",
			Name:      "cycle_duration_seconds",
			Help:      "Длительность одного прохода",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .02, .05},
		}),
		executed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "media",
			Subsystem: "scheduler",
			Name:      "tasks_executed_total",
			Help:      "Число выполненных активаций задач",
		}, []string{"queue"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "media",
			Subsystem: "scheduler",
			Name:      "task_failures_total",
			Help:      "Число активаций, завершившихся паникой",
		}, []string{"queue"}),
	}
}
