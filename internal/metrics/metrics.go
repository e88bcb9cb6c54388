// Package metrics holds the prometheus collectors shared by the editor core.
// All methods are safe to call on a nil *Metrics, so services can run without
// a registry (tests, one-shot CLI commands).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "otc_"

const (
	ResultSuccess       = "success"
	ResultError         = "error"
	ResultBusy          = "busy"
	ResultNotExecutable = "not_executable"
)

// Metrics groups every collector used by the editor services.
type Metrics struct {
	storeNotifications      prometheus.Counter
	storeSubscriberFailures prometheus.Counter
	storeHistoryDropped     prometheus.Counter

	commandExecutions *prometheus.CounterVec
	commandLatency    *prometheus.HistogramVec
	commandUndo       prometheus.Counter
	commandRedo       prometheus.Counter

	circuitComponents  prometheus.Gauge
	circuitConnections prometheus.Gauge
	circuitViolations  prometheus.Gauge

	restoreWarnings prometheus.Counter
	ratsnestLines   prometheus.Gauge
	ratsnestSkipped prometheus.Counter

	persistSaves *prometheus.CounterVec
}

// New builds the collectors and registers them on reg. A nil reg leaves the
// collectors unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		storeNotifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "store_notifications_total",
			Help: "Subscriber notifications delivered by the state store",
		}),
		storeSubscriberFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "store_subscriber_failures_total",
			Help: "Subscriber callbacks that returned an error or panicked",
		}),
		storeHistoryDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "store_history_dropped_total",
			Help: "History entries evicted by the FIFO cap",
		}),
		commandExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "command_executions_total",
			Help: "Command executions by command and result",
		}, []string{"command", "result"}),
		commandLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metricPrefix + "command_latency_seconds",
			Help:    "Command execution latency",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"command"}),
		commandUndo: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "command_undo_total",
			Help: "Undo operations applied",
		}),
		commandRedo: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "command_redo_total",
			Help: "Redo operations applied",
		}),
		circuitComponents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "circuit_components",
			Help: "Live components in the circuit model",
		}),
		circuitConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "circuit_connections",
			Help: "Live connections in the circuit model",
		}),
		circuitViolations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "circuit_violations",
			Help: "Violations reported by the last consistency check",
		}),
		restoreWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "restore_warnings_total",
			Help: "Non-fatal items skipped while restoring a design",
		}),
		ratsnestLines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "ratsnest_lines",
			Help: "Advisory lines drawn by the last ratsnest pass",
		}),
		ratsnestSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "ratsnest_skipped_total",
			Help: "Connections skipped because footprint data was missing",
		}),
		persistSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "persist_saves_total",
			Help: "Design saves by backend and result",
		}, []string{"backend", "result"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.storeNotifications,
			m.storeSubscriberFailures,
			m.storeHistoryDropped,
			m.commandExecutions,
			m.commandLatency,
			m.commandUndo,
			m.commandRedo,
			m.circuitComponents,
			m.circuitConnections,
			m.circuitViolations,
			m.restoreWarnings,
			m.ratsnestLines,
			m.ratsnestSkipped,
			m.persistSaves,
		)
	}
	return m
}

func (m *Metrics) StoreNotified(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.storeNotifications.Add(float64(n))
}

func (m *Metrics) StoreSubscriberFailed() {
	if m == nil {
		return
	}
	m.storeSubscriberFailures.Inc()
}

func (m *Metrics) StoreHistoryDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.storeHistoryDropped.Add(float64(n))
}

// CommandExecuted records one command outcome and its latency.
func (m *Metrics) CommandExecuted(command, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.commandExecutions.WithLabelValues(command, result).Inc()
	m.commandLatency.WithLabelValues(command).Observe(elapsed.Seconds())
}

func (m *Metrics) CommandUndone() {
	if m == nil {
		return
	}
	m.commandUndo.Inc()
}

func (m *Metrics) CommandRedone() {
	if m == nil {
		return
	}
	m.commandRedo.Inc()
}

// CircuitSize publishes the component and connection counts.
func (m *Metrics) CircuitSize(components, connections int) {
	if m == nil {
		return
	}
	m.circuitComponents.Set(float64(components))
	m.circuitConnections.Set(float64(connections))
}

func (m *Metrics) CircuitViolations(n int) {
	if m == nil {
		return
	}
	m.circuitViolations.Set(float64(n))
}

func (m *Metrics) RestoreWarning() {
	if m == nil {
		return
	}
	m.restoreWarnings.Inc()
}

// Ratsnest records the outcome of one full ratsnest pass.
func (m *Metrics) Ratsnest(lines, skipped int) {
	if m == nil {
		return
	}
	m.ratsnestLines.Set(float64(lines))
	if skipped > 0 {
		m.ratsnestSkipped.Add(float64(skipped))
	}
}

func (m *Metrics) PersistSaved(backend, result string) {
	if m == nil {
		return
	}
	m.persistSaves.WithLabelValues(backend, result).Inc()
}
