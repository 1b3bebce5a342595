package infra

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"fuel-reservoir/reservoir/domain"

	"github.com/pkg/errors"
)

// Tank é o reservatório: um nível limitado por capacity, protegido por um único mutex.
//
// A condição de espera é um channel de "geração": quem espera captura o channel atual
// sob o lock e, depois de soltar o lock, bloqueia nele (ou no ctx). Replenish fecha o
// channel (acorda todos) e cria outro. Como a captura acontece sob o lock, nenhum
// acordar é perdido entre a checagem e a suspensão.
type Tank struct {
	mu       sync.Mutex
	level    float64
	capacity float64
	wake     chan struct{}

	events domain.Publisher
	now    func() time.Time
}

var _ domain.Reservoir = (*Tank)(nil)

type TankOption func(*Tank)

// WithInitialLevel define o nível inicial (padrão: cheio).
func WithInitialLevel(level float64) TankOption {
	return func(t *Tank) { t.level = level }
}

// WithPublisher define quem recebe FuelLevelChanged. Publish não pode bloquear.
func WithPublisher(p domain.Publisher) TankOption {
	return func(t *Tank) {
		if p != nil {
			t.events = p
		}
	}
}

func NewTank(capacity float64, opts ...TankOption) (*Tank, error) {
	if !finite(capacity) || capacity <= 0 {
		return nil, errors.Errorf("tank capacity must be > 0, got %v", capacity)
	}
	t := &Tank{
		level:    capacity,
		capacity: capacity,
		wake:     make(chan struct{}),
		events:   domain.NopPublisher{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if !finite(t.level) || t.level < 0 || t.level > t.capacity {
		return nil, errors.Errorf("tank initial level must be in [0, %v], got %v", t.capacity, t.level)
	}
	return t, nil
}

// Consume implementa domain.Reservoir.
//
// Caminho rápido: se amount <= nível, subtrai sem suspender.
// Caso contrário chama onWait e suspende até Replenish ou até o ctx encerrar,
// re-checando amount > nível a cada acordar.
func (t *Tank) Consume(ctx context.Context, amount float64, onWait func()) error {
	if err := t.validate(amount, true); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for amount > t.level {
		if err := t.suspend(ctx, amount, onWait); err != nil {
			return err
		}
	}

	t.level -= amount
	t.checkInvariant("consume")
	t.publishLevel()
	return nil
}

// suspend é chamado com o lock adquirido e sempre retorna com ele adquirido,
// inclusive quando onWait entra em pânico.
func (t *Tank) suspend(ctx context.Context, amount float64, onWait func()) error {
	wake := t.wake
	t.mu.Unlock()
	defer t.mu.Lock()

	if onWait != nil {
		onWait()
	}

	select {
	case <-wake:
		return nil
	case <-ctx.Done():
		return waitError(ctx, amount)
	}
}

// Replenish implementa domain.Reservoir. O nível nunca passa de capacity.
func (t *Tank) Replenish(amount float64) (float64, error) {
	if err := t.validate(amount, false); err != nil {
		return t.Level(), err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.level = math.Min(t.level+amount, t.capacity)
	t.checkInvariant("replenish")

	close(t.wake)
	t.wake = make(chan struct{})

	t.publishLevel()
	return t.level, nil
}

func (t *Tank) Level() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.level
}

func (t *Tank) Capacity() float64 { return t.capacity }

func (t *Tank) validate(amount float64, consume bool) error {
	switch {
	case math.IsNaN(amount) || math.IsInf(amount, 0):
		return &domain.AmountError{Input: formatAmount(amount), Reason: "not a finite number"}
	case amount < 0:
		return &domain.AmountError{Input: formatAmount(amount), Reason: "must be >= 0"}
	case consume && amount > t.capacity:
		// nunca seria satisfeito: esperaria para sempre
		return &domain.AmountError{Input: formatAmount(amount), Reason: "exceeds capacity " + formatAmount(t.capacity)}
	}
	return nil
}

// checkInvariant roda sob o lock. Nível fora de [0, capacity] é bug de coordenação.
func (t *Tank) checkInvariant(op string) {
	if math.IsNaN(t.level) || t.level < 0 || t.level > t.capacity {
		panic(&domain.InvariantViolation{Op: op, Level: t.level, Capacity: t.capacity})
	}
}

// publishLevel roda sob o lock para que os observadores vejam os níveis na ordem das mutações.
func (t *Tank) publishLevel() {
	t.events.Publish(domain.Event{
		Kind:  domain.FuelLevelChanged,
		Level: t.level,
		At:    t.now(),
	})
}

func waitError(ctx context.Context, amount float64) error {
	cause := ctx.Err()
	if errors.Is(cause, context.DeadlineExceeded) {
		return errors.Wrapf(domain.ErrTimedOut, "consume %s: %v", formatAmount(amount), cause)
	}
	return errors.Wrapf(domain.ErrCancelledWhileWaiting, "consume %s: %v", formatAmount(amount), cause)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func formatAmount(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
