package engine

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/1broseidon/wmcore/internal/wm"
)

// Metrics are the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	toplevels    prometheus.Gauge
	outputs      prometheus.Gauge
	configures   prometheus.Counter
	acks         prometheus.Counter
	keys         *prometheus.CounterVec
	focusChanges *prometheus.CounterVec
	moduleLoads  *prometheus.CounterVec
	moduleErrors *prometheus.CounterVec
	moduleCalls  *prometheus.HistogramVec
	rejected     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		toplevels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wmcore",
			Name:      "toplevels",
			Help:      "Live toplevels.",
		}),
		outputs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wmcore",
			Name:      "outputs",
			Help:      "Connected outputs.",
		}),
		configures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wmcore",
			Subsystem: "configure",
			Name:      "submitted_total",
			Help:      "Configures submitted by the policy module.",
		}),
		acks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wmcore",
			Subsystem: "configure",
			Name:      "acks_total",
			Help:      "Configure acknowledgments delivered to the policy module.",
		}),
		keys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wmcore",
			Subsystem: "input",
			Name:      "keys_total",
			Help:      "Key events by filter verdict.",
		}, []string{"verdict"}),
		focusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wmcore",
			Subsystem: "input",
			Name:      "focus_changes_total",
			Help:      "Applied focus changes by seat device.",
		}, []string{"device"}),
		moduleLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wmcore",
			Subsystem: "module",
			Name:      "loads_total",
			Help:      "Module activation attempts by result.",
		}, []string{"result"}),
		moduleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wmcore",
			Subsystem: "module",
			Name:      "errors_total",
			Help:      "Failed module entry points.",
		}, []string{"entry"}),
		moduleCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wmcore",
			Subsystem: "module",
			Name:      "call_duration_seconds",
			Help:      "Time spent inside module entry points.",
			Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
		}, []string{"entry"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wmcore",
			Name:      "rejected_events_total",
			Help:      "Inbound protocol events rejected by the engine.",
		}, []string{"event", "reason"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.toplevels, m.outputs, m.configures, m.acks, m.keys, m.focusChanges,
			m.moduleLoads, m.moduleErrors, m.moduleCalls, m.rejected,
		)
	}
	return m
}

func (m *Metrics) setCounts(toplevels, outputs int) {
	if m == nil {
		return
	}
	m.toplevels.Set(float64(toplevels))
	m.outputs.Set(float64(outputs))
}

func (m *Metrics) configureSubmitted() {
	if m == nil {
		return
	}
	m.configures.Inc()
}

func (m *Metrics) ackDelivered() {
	if m == nil {
		return
	}
	m.acks.Inc()
}

func (m *Metrics) key(verdict wm.KeyFilter) {
	if m == nil {
		return
	}
	m.keys.WithLabelValues(verdict.String()).Inc()
}

func (m *Metrics) focusChanged(device string) {
	if m == nil {
		return
	}
	m.focusChanges.WithLabelValues(device).Inc()
}

func (m *Metrics) moduleLoad(err error) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, wm.ErrIncompatibleABI):
		result = "incompatible_abi"
	case err != nil:
		result = "init_failure"
	}
	m.moduleLoads.WithLabelValues(result).Inc()
}

func (m *Metrics) moduleCall(entry string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.moduleCalls.WithLabelValues(entry).Observe(d.Seconds())
	if err != nil {
		m.moduleErrors.WithLabelValues(entry).Inc()
	}
}

func (m *Metrics) reject(event string, err error) {
	if m == nil || err == nil {
		return
	}
	reason := "other"
	switch {
	case errors.Is(err, wm.ErrUnknownHandle):
		reason = "unknown_handle"
	case errors.Is(err, wm.ErrInvalidState):
		reason = "invalid_state"
	}
	m.rejected.WithLabelValues(event, reason).Inc()
}
