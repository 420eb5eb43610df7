// Package metrics exposes the kernel's Prometheus instrumentation: task
// manager throughput, config watcher fan-out latency, pub/sub dispatch
// latency, and handle table occupancy. See SPEC_FULL.md §2.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task manager metrics
	TaskQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "edgekernel_task_queue_depth",
			Help: "Number of tasks currently queued by affinity",
		},
		[]string{"affinity"},
	)

	TaskWorkerUtilization = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "edgekernel_task_worker_utilization",
			Help: "Fraction of pool workers currently running a task (0-1)",
		},
	)

	TasksCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgekernel_tasks_completed_total",
			Help: "Total number of tasks completed by status",
		},
		[]string{"status"},
	)

	TaskWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "edgekernel_task_wait_duration_seconds",
			Help:    "Time a task spent queued before a worker picked it up",
			Buckets: prometheus.DefBuckets,
		},
	)

	TaskRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edgekernel_task_run_duration_seconds",
			Help:    "Time a task spent executing, by affinity",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"affinity"},
	)

	// Config metrics
	ConfigWatcherDispatchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "edgekernel_config_watcher_dispatch_latency_seconds",
			Help:    "Time from a config write to a watcher callback draining off the publish queue",
			Buckets: prometheus.DefBuckets,
		},
	)

	ConfigWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgekernel_config_writes_total",
			Help: "Total number of config topic writes by outcome",
		},
		[]string{"outcome"},
	)

	// Pub/sub metrics
	PubSubDispatchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edgekernel_pubsub_dispatch_latency_seconds",
			Help:    "Time to invoke a topic's listener(s), by topic",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	PubSubCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgekernel_pubsub_calls_total",
			Help: "Total number of topic calls by outcome",
		},
		[]string{"outcome"},
	)

	// Handle table metrics
	HandleTableOccupancy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "edgekernel_handle_table_occupancy",
			Help: "Number of live (unreleased) handle slots",
		},
	)

	HandleTableCapacity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "edgekernel_handle_table_capacity",
			Help: "Current allocated size of the handle slot table",
		},
	)

	// Plugin metrics
	PluginInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgekernel_plugin_invocations_total",
			Help: "Total number of plugin module invocations by phase and outcome",
		},
		[]string{"phase", "outcome"},
	)

	PluginInvocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edgekernel_plugin_invocation_duration_seconds",
			Help:    "Plugin module invocation duration in seconds, by phase",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)
)

func init() {
	prometheus.MustRegister(TaskQueueDepth)
	prometheus.MustRegister(TaskWorkerUtilization)
	prometheus.MustRegister(TasksCompletedTotal)
	prometheus.MustRegister(TaskWaitDuration)
	prometheus.MustRegister(TaskRunDuration)

	prometheus.MustRegister(ConfigWatcherDispatchLatency)
	prometheus.MustRegister(ConfigWritesTotal)

	prometheus.MustRegister(PubSubDispatchLatency)
	prometheus.MustRegister(PubSubCallsTotal)

	prometheus.MustRegister(HandleTableOccupancy)
	prometheus.MustRegister(HandleTableCapacity)

	prometheus.MustRegister(PluginInvocationsTotal)
	prometheus.MustRegister(PluginInvocationDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
