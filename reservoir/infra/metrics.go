package infra

import (
	"sync"

	"fuel-reservoir/reservoir/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSink expõe o nível e os carros por estado como métricas Prometheus.
type MetricsSink struct {
	level       prometheus.Gauge
	cars        *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	throttled   *prometheus.CounterVec

	mu     sync.Mutex
	states map[domain.AgentID]domain.AgentState
}

func NewMetricsSink(reg prometheus.Registerer) (*MetricsSink, error) {
	m := &MetricsSink{
		level: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fuel",
			Subsystem: "reservoir",
			Name:      "level",
			Help:      "Current fuel level of the reservoir.",
		}),
		cars: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fuel",
			Subsystem: "reservoir",
			Name:      "cars",
			Help:      "Cars currently in a non-terminal state.",
		}, []string{"state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fuel",
			Subsystem: "reservoir",
			Name:      "car_transitions_total",
			Help:      "Car lifecycle transitions by target state.",
		}, []string{"state"}),
		throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fuel",
			Subsystem: "reservoir",
			Name:      "triggers_throttled_total",
			Help:      "Triggers rejected by the per-client limit, by trigger.",
		}, []string{"trigger"}),
		states: make(map[domain.AgentID]domain.AgentState),
	}
	for _, c := range []prometheus.Collector{m.level, m.cars, m.transitions, m.throttled} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *MetricsSink) Handle(ev domain.Event) {
	switch ev.Kind {
	case domain.FuelLevelChanged:
		m.level.Set(ev.Level)
	case domain.TriggerThrottled:
		m.throttled.WithLabelValues(string(ev.Trigger)).Inc()
	case domain.AgentStateChanged:
		m.transitions.WithLabelValues(ev.State.String()).Inc()

		m.mu.Lock()
		defer m.mu.Unlock()
		if prev, ok := m.states[ev.Agent]; ok {
			m.cars.WithLabelValues(prev.String()).Dec()
		}
		if ev.State.Terminal() {
			delete(m.states, ev.Agent)
			return
		}
		m.states[ev.Agent] = ev.State
		m.cars.WithLabelValues(ev.State.String()).Inc()
	}
}
