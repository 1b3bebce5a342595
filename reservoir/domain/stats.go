package domain

import (
	"context"
	"time"
)

// StatsEvent é o registro de uma transição do ciclo de vida de um carro.
//
// Cuidado com cardinalidade: guardar Agent por carro cria uma chave por carro
// (ver opções de track nas implementações).
type StatsEvent struct {
	Agent  AgentID
	State  AgentState
	Demand float64
	Level  float64

	At time.Time
}

// ThrottleEvent é um gatilho recusado pelo limite do cliente.
type ThrottleEvent struct {
	Trigger Trigger
	Client  string
	At      time.Time
}

// StatsStore é a estratégia de persistência para estatísticas do ciclo de vida
// e dos gatilhos recusados.
//
// Implementações podem armazenar em Redis, memória, etc.
// O chamador trata erro como best-effort (não interrompe o carro).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
	RecordThrottle(ctx context.Context, ev ThrottleEvent) error
}
