package infra

import (
	"context"

	"fuel-reservoir/reservoir/domain"
)

type slotPool struct {
	sem chan struct{}
}

// NewSlotPool cria um semáforo baseado em channel com capacidade `max`.
// max <= 0 significa sem limite: Acquire nunca bloqueia.
func NewSlotPool(max int) domain.SlotPool {
	if max <= 0 {
		return unboundedPool{}
	}
	return &slotPool{sem: make(chan struct{}, max)}
}

func (p *slotPool) Acquire(ctx context.Context) (func(), bool) {
	// ctx já encerrado não pega vaga, mesmo se houver uma livre
	if ctx.Err() != nil {
		return nil, false
	}
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, true
	case <-ctx.Done():
		return nil, false
	}
}

// InUse retorna quantas vagas estão ocupadas agora.
func (p *slotPool) InUse() int { return len(p.sem) }

type unboundedPool struct{}

func (unboundedPool) Acquire(ctx context.Context) (func(), bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	return func() {}, true
}
