package infra

import (
	"context"
	"sync"

	"fuel-reservoir/reservoir/domain"
)

// Counters conta transições por estado.
type Counters map[domain.AgentState]int64

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes, para o simulador e como padrão sem Redis.
//
// Não faz expiração e não é indicada para muitos carros com trackAgents ligado.
type MemoryStatsStore struct {
	mu        sync.Mutex
	total     Counters
	demand    float64
	byAgent   map[domain.AgentID]domain.AgentState
	lastLevel float64
	throttled map[domain.Trigger]int64

	trackAgents bool
}

type MemoryStatsOption func(*MemoryStatsStore)

// WithTrackAgents guarda o último estado de cada carro.
func WithTrackAgents(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackAgents = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		total:     make(Counters),
		byAgent:   make(map[domain.AgentID]domain.AgentState),
		throttled: make(map[domain.Trigger]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total[ev.State]++
	s.lastLevel = ev.Level
	if ev.State == domain.Consuming {
		s.demand += ev.Demand
	}
	if s.trackAgents {
		s.byAgent[ev.Agent] = ev.State
	}
	return nil
}

func (s *MemoryStatsStore) RecordThrottle(_ context.Context, ev domain.ThrottleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.throttled[ev.Trigger]++
	return nil
}

// Throttled conta gatilhos recusados por gatilho.
func (s *MemoryStatsStore) Throttled() map[domain.Trigger]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Trigger]int64, len(s.throttled))
	for k, v := range s.throttled {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(Counters, len(s.total))
	for k, v := range s.total {
		out[k] = v
	}
	return out
}

// Dispensed é a soma das demandas que chegaram a Consuming.
func (s *MemoryStatsStore) Dispensed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.demand
}

func (s *MemoryStatsStore) LastLevel() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastLevel
}

func (s *MemoryStatsStore) ByAgent() map[domain.AgentID]domain.AgentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.AgentID]domain.AgentState, len(s.byAgent))
	for k, v := range s.byAgent {
		out[k] = v
	}
	return out
}
