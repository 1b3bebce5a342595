package infra

import (
	"context"
	"time"

	"fuel-reservoir/reservoir/domain"

	"github.com/sirupsen/logrus"
)

// LogSink escreve cada evento como uma linha estruturada.
// Capacity converte o nível em porcentagem; 0 é tratado como 1.
type LogSink struct {
	Log      logrus.FieldLogger
	Capacity float64
}

func (s LogSink) Handle(ev domain.Event) {
	capacity := s.Capacity
	if capacity <= 0 {
		capacity = 1
	}
	fields := logrus.Fields{
		"event":   ev.Kind.String(),
		"level":   ev.Level,
		"percent": Percent(ev.Level / capacity),
	}
	switch ev.Kind {
	case domain.TriggerThrottled:
		s.Log.WithFields(logrus.Fields{
			"event":   ev.Kind.String(),
			"trigger": string(ev.Trigger),
			"client":  ev.Client,
		}).Info("trigger throttled")
	case domain.AgentStateChanged:
		fields["car"] = ev.Agent
		fields["state"] = ev.State.String()
		fields["demand"] = ev.Demand
		entry := s.Log.WithFields(fields)
		if ev.State == domain.TimedOut {
			entry.Warn("car gave up waiting")
			return
		}
		entry.Debug("car state changed")
	default:
		s.Log.WithFields(fields).Info("fuel level changed")
	}
}

// StatsSink grava transições de carros e gatilhos recusados num domain.StatsStore (best-effort).
type StatsSink struct {
	Store   domain.StatsStore
	Timeout time.Duration
	Log     logrus.FieldLogger
}

func (s StatsSink) Handle(ev domain.Event) {
	if s.Store == nil || (ev.Kind != domain.AgentStateChanged && ev.Kind != domain.TriggerThrottled) {
		return
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if ev.Kind == domain.TriggerThrottled {
		err := s.Store.RecordThrottle(ctx, domain.ThrottleEvent{Trigger: ev.Trigger, Client: ev.Client, At: ev.At})
		if err != nil && s.Log != nil {
			s.Log.WithError(err).WithField("trigger", ev.Trigger).Warn("stats record failed")
		}
		return
	}

	err := s.Store.Record(ctx, domain.StatsEvent{
		Agent:  ev.Agent,
		State:  ev.State,
		Demand: ev.Demand,
		Level:  ev.Level,
		At:     ev.At,
	})
	if err != nil && s.Log != nil {
		s.Log.WithError(err).WithField("car", ev.Agent).Warn("stats record failed")
	}
}

// Percent formata o nível como o painel mostra: porcentagem com duas casas.
func Percent(level float64) float64 {
	return float64(int64(level*10000+0.5)) / 100
}
