package application

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"fuel-reservoir/reservoir/domain"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// DefaultMaxDemandFraction: cada carro pede até 30% da capacidade.
const DefaultMaxDemandFraction = 0.3

// DepartureFunc é a entrega pós-consumo para a apresentação (ex: animação de saída).
// Quando retorna, o carro é marcado Departed. Deve respeitar ctx.
type DepartureFunc func(ctx context.Context, a domain.Agent)

// DelayDeparture simula o carro saindo da tela em d (o painel usa 3s).
func DelayDeparture(d time.Duration) DepartureFunc {
	return func(ctx context.Context, _ domain.Agent) {
		if d <= 0 {
			return
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
	}
}

// Scheduler cria uma goroutine por carro contra um único reservatório compartilhado.
//
// O número de carros vivos é limitado pelo SlotPool (se houver); sem vaga dentro de
// AdmitTimeout, AddAgent devolve domain.ErrSchedulerSaturated.
type Scheduler struct {
	reservoir domain.Reservoir
	events    domain.Publisher

	slots        domain.SlotPool
	admitTimeout time.Duration

	maxDemandFraction float64
	consumeTimeout    time.Duration
	departure         DepartureFunc
	random            func() float64
	newID             func() domain.AgentID
	now               func() time.Time
	log               logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool

	active *atomic.Int64
}

type SchedulerOption func(*Scheduler)

func WithEvents(p domain.Publisher) SchedulerOption {
	return func(s *Scheduler) {
		if p != nil {
			s.events = p
		}
	}
}

// WithSlots limita carros simultâneos. admitTimeout <= 0 espera até o ctx de AddAgent cancelar.
func WithSlots(pool domain.SlotPool, admitTimeout time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.slots = pool
		s.admitTimeout = admitTimeout
	}
}

func WithMaxDemandFraction(f float64) SchedulerOption {
	return func(s *Scheduler) {
		if f > 0 && f <= 1 {
			s.maxDemandFraction = f
		}
	}
}

// WithConsumeTimeout define o prazo de espera por combustível; 0 espera indefinidamente.
func WithConsumeTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.consumeTimeout = d }
}

func WithDeparture(fn DepartureFunc) SchedulerOption {
	return func(s *Scheduler) {
		if fn != nil {
			s.departure = fn
		}
	}
}

// WithRandom troca a fonte de [0,1) usada no sorteio da demanda.
func WithRandom(fn func() float64) SchedulerOption {
	return func(s *Scheduler) {
		if fn != nil {
			s.random = fn
		}
	}
}

func WithIDGenerator(fn func() domain.AgentID) SchedulerOption {
	return func(s *Scheduler) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func WithLogger(l logrus.FieldLogger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

func NewScheduler(r domain.Reservoir, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		reservoir:         r,
		events:            domain.NopPublisher{},
		maxDemandFraction: DefaultMaxDemandFraction,
		departure:         DelayDeparture(0),
		random:            rand.Float64,
		newID:             func() domain.AgentID { return domain.AgentID(uuid.NewString()) },
		now:               time.Now,
		log:               logrus.StandardLogger(),
		active:            atomic.NewInt64(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// AddAgent cria um carro com demanda sorteada em [0, maxDemandFraction*capacity)
// e roda seu ciclo de vida de forma assíncrona. ctx limita apenas a espera por vaga.
func (s *Scheduler) AddAgent(ctx context.Context) (domain.Agent, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Agent{}, domain.ErrSchedulerClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	release, err := s.admit(ctx)
	if err != nil {
		s.wg.Done()
		return domain.Agent{}, err
	}

	a := domain.Agent{
		ID:        s.newID(),
		Demand:    s.random() * s.maxDemandFraction * s.reservoir.Capacity(),
		State:     domain.Arriving,
		CreatedAt: s.now(),
	}
	s.emit(a)

	go s.run(a, release)
	return a, nil
}

// admit espera uma vaga até o ctx do chamador, admitTimeout ou Shutdown.
func (s *Scheduler) admit(ctx context.Context) (func(), error) {
	if s.slots == nil {
		return func() {}, nil
	}

	acqCtx, cancel := context.WithCancel(ctx)
	if s.admitTimeout > 0 {
		acqCtx, cancel = context.WithTimeout(ctx, s.admitTimeout)
	}
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	release, ok := s.slots.Acquire(acqCtx)
	if ok {
		return release, nil
	}
	if s.ctx.Err() != nil {
		return nil, domain.ErrSchedulerClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(domain.ErrSchedulerSaturated, err.Error())
	}
	return nil, errors.Wrapf(domain.ErrSchedulerSaturated, "no free slot within %s", s.admitTimeout)
}

func (s *Scheduler) run(a domain.Agent, release func()) {
	defer s.wg.Done()
	defer release()
	s.active.Inc()
	defer s.active.Dec()

	log := s.log.WithFields(logrus.Fields{"car": a.ID, "demand": a.Demand})

	ctx, cancel := s.ctx, context.CancelFunc(func() {})
	if s.consumeTimeout > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, s.consumeTimeout)
	}
	// onWait roda nesta goroutine: waiting não precisa de sincronização
	waiting := false
	err := s.reservoir.Consume(ctx, a.Demand, func() {
		if !waiting {
			waiting = true
			s.transition(&a, domain.Waiting)
		}
	})
	cancel()

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrTimedOut):
		s.transition(&a, domain.TimedOut)
		return
	case errors.Is(err, domain.ErrCancelledWhileWaiting):
		s.transition(&a, domain.Cancelled)
		return
	default:
		log.WithError(err).Error("consume failed")
		s.transition(&a, domain.Cancelled)
		return
	}

	s.transition(&a, domain.Consuming)

	s.departure(s.ctx, a)

	s.transition(&a, domain.Departed)
}

// transition move o carro para to e emite o evento. Uma aresta fora da máquina de
// estados é bug do scheduler: é logada e descartada, o carro fica no estado anterior.
func (s *Scheduler) transition(a *domain.Agent, to domain.AgentState) bool {
	if !a.State.CanTransition(to) {
		s.log.WithFields(logrus.Fields{
			"car":  a.ID,
			"from": a.State.String(),
			"to":   to.String(),
		}).Error("illegal car state transition")
		return false
	}
	a.State = to
	s.emit(*a)
	return true
}

func (s *Scheduler) emit(a domain.Agent) {
	s.events.Publish(domain.Event{
		Kind:   domain.AgentStateChanged,
		Agent:  a.ID,
		State:  a.State,
		Demand: a.Demand,
		Level:  s.reservoir.Level(),
		At:     s.now(),
	})
}

// Active retorna quantos carros ainda estão com goroutine viva.
func (s *Scheduler) Active() int { return int(s.active.Load()) }

// Shutdown para de aceitar carros, interrompe todos que esperam combustível ou saem
// da tela, e espera as goroutines terminarem (ou ctx encerrar).
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "scheduler shutdown: %d cars still running", s.Active())
	}
}
