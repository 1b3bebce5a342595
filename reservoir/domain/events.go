package domain

import "time"

type EventKind int

const (
	FuelLevelChanged EventKind = iota + 1
	AgentStateChanged
	TriggerThrottled
)

func (k EventKind) String() string {
	switch k {
	case FuelLevelChanged:
		return "fuel_level_changed"
	case AgentStateChanged:
		return "agent_state_changed"
	case TriggerThrottled:
		return "trigger_throttled"
	default:
		return "unknown"
	}
}

// Event é a notificação observável emitida pelo núcleo.
//
// FuelLevelChanged: Level é o novo nível.
// AgentStateChanged: Agent/State/Demand descrevem a transição; Level é o nível lido
// logo após a transição (informativo, pode já estar desatualizado).
// TriggerThrottled: Trigger/Client dizem quem foi contido; o nível não mudou.
type Event struct {
	Kind    EventKind
	Level   float64
	Agent   AgentID
	State   AgentState
	Demand  float64
	Trigger Trigger
	Client  string
	At      time.Time
}

// Publisher recebe eventos do núcleo. Publish não pode bloquear: é chamado
// de dentro da região exclusiva do reservatório.
type Publisher interface {
	Publish(Event)
}

// EventSink consome eventos já despachados (log, estatísticas, métricas, stream HTTP).
// Não há garantia sobre a goroutine em que Handle roda.
type EventSink interface {
	Handle(Event)
}

type EventSinkFunc func(Event)

func (f EventSinkFunc) Handle(ev Event) { f(ev) }

// NopPublisher descarta eventos.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}
