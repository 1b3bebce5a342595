package domain

import "time"

// Trigger é um gatilho externo que muda o sistema: adicionar carro ou reabastecer.
// Cada gatilho tem seu próprio limite por cliente.
type Trigger string

const (
	TriggerAddCar   Trigger = "cars"
	TriggerRecharge Trigger = "recharge"
)

// TriggerKey identifica o bucket de um cliente para um gatilho.
type TriggerKey struct {
	Trigger Trigger
	Client  string
}

func (k TriggerKey) String() string { return string(k.Trigger) + ":" + k.Client }

// Rate é o limite de um gatilho: RPS tokens por segundo, rajada de Burst.
// RPS <= 0 deixa o gatilho sem limite.
type Rate struct {
	RPS   float64
	Burst int
}

func (r Rate) Unlimited() bool { return r.RPS <= 0 }

type Limiter interface {
	Allow() bool
}

// LimiterStore devolve o limiter do bucket, ou nil se o gatilho não tem limite.
type LimiterStore interface {
	Get(TriggerKey) Limiter
}

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}
