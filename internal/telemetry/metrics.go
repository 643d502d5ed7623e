package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "portfolium"

// Metrics - Prometheus метрики выполнения планов.
//
// Все методы допускают nil-получатель: компоненты, созданные без метрик,
// просто ничего не считают.
type Metrics struct {
	plans        *prometheus.CounterVec
	stages       prometheus.Counter
	tasks        *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	scheduled    *prometheus.CounterVec
}

// NewMetrics создаёт метрики и регистрирует их в reg.
// nil означает prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		plans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_total",
			Help:      "Executed plans by final status",
		}, []string{"status"}),

		stages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stages_total",
			Help:      "Executed plan stages",
		}),

		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Executed tasks by tool and outcome",
		}, []string{"tool", "status"}),

		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Tool invocation latency",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"tool"}),

		scheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_runs_total",
			Help:      "Runs started by the scheduler",
		}, []string{"schedule"}),
	}

	reg.MustRegister(m.plans, m.stages, m.tasks, m.taskDuration, m.scheduled)
	return m
}

// ObservePlan учитывает завершённый план.
func (m *Metrics) ObservePlan(status string) {
	if m == nil {
		return
	}
	m.plans.WithLabelValues(status).Inc()
}

// ObserveStage учитывает выполненный этап.
func (m *Metrics) ObserveStage() {
	if m == nil {
		return
	}
	m.stages.Inc()
}

// ObserveTask учитывает задачу и время её выполнения.
func (m *Metrics) ObserveTask(tool, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(tool, status).Inc()
	m.taskDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// ObserveScheduledRun учитывает запуск по расписанию.
func (m *Metrics) ObserveScheduledRun(schedule string) {
	if m == nil {
		return
	}
	m.scheduled.WithLabelValues(schedule).Inc()
}
