package domain

import (
	"fmt"
	"time"
)

type AgentID string

// AgentState é o estado do ciclo de vida de um carro.
//
//	Arriving -> Waiting? -> Consuming -> Departed
//
// TimedOut e Cancelled são desfechos terminais de quem nunca chegou a consumir.
type AgentState int

const (
	Arriving AgentState = iota
	Waiting
	Consuming
	Departed
	TimedOut
	Cancelled
)

var stateNames = map[AgentState]string{
	Arriving:  "arriving",
	Waiting:   "waiting",
	Consuming: "consuming",
	Departed:  "departed",
	TimedOut:  "timed_out",
	Cancelled: "cancelled",
}

func (s AgentState) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("AgentState(%d)", int(s))
}

func (s AgentState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *AgentState) UnmarshalText(b []byte) error {
	for k, v := range stateNames {
		if v == string(b) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown agent state %q", b)
}

// Terminal indica que nenhuma transição sai deste estado.
func (s AgentState) Terminal() bool {
	return s == Departed || s == TimedOut || s == Cancelled
}

// CanTransition valida as arestas da máquina de estados.
// Waiting -> Waiting não é uma transição: a re-checagem após acordar não muda o estado.
func (s AgentState) CanTransition(to AgentState) bool {
	switch s {
	case Arriving:
		return to == Waiting || to == Consuming || to == TimedOut || to == Cancelled
	case Waiting:
		return to == Consuming || to == TimedOut || to == Cancelled
	case Consuming:
		return to == Departed
	default:
		return false
	}
}

// Agent é um carro: demanda sorteada uma única vez na criação.
type Agent struct {
	ID        AgentID    `json:"id"`
	Demand    float64    `json:"demand"`
	State     AgentState `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
}
