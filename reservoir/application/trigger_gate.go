package application

import (
	"time"

	"fuel-reservoir/reservoir/domain"
)

// TriggerGate decide se um gatilho de um cliente chega ao núcleo agora.
// Cada recusa vira um evento domain.TriggerThrottled, então log, métricas e
// estatísticas enxergam a contenção junto com o resto do ciclo de vida.
type TriggerGate struct {
	store      domain.LimiterStore
	events     domain.Publisher
	retryAfter time.Duration
	now        func() time.Time
}

// NewTriggerGate: store nil deixa todos os gatilhos passarem; retryAfter <= 0 vira 1s.
func NewTriggerGate(store domain.LimiterStore, events domain.Publisher, retryAfter time.Duration) *TriggerGate {
	if events == nil {
		events = domain.NopPublisher{}
	}
	if retryAfter <= 0 {
		retryAfter = time.Second
	}
	return &TriggerGate{store: store, events: events, retryAfter: retryAfter, now: time.Now}
}

func (g *TriggerGate) Admit(tr domain.Trigger, client string) domain.Decision {
	if g == nil || g.store == nil {
		return domain.Decision{Allowed: true}
	}
	lim := g.store.Get(domain.TriggerKey{Trigger: tr, Client: client})
	if lim == nil || lim.Allow() {
		return domain.Decision{Allowed: true}
	}

	g.events.Publish(domain.Event{
		Kind:    domain.TriggerThrottled,
		Trigger: tr,
		Client:  client,
		At:      g.now(),
	})
	return domain.Decision{Allowed: false, RetryAfter: g.retryAfter}
}
