package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"fuel-reservoir/reservoir/domain"
	"fuel-reservoir/reservoir/infra"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

// recorder é um domain.Publisher síncrono que guarda os estados por carro.
type recorder struct {
	mu     sync.Mutex
	states map[domain.AgentID][]domain.AgentState
}

func newRecorder() *recorder {
	return &recorder{states: make(map[domain.AgentID][]domain.AgentState)}
}

func (r *recorder) Publish(ev domain.Event) {
	if ev.Kind != domain.AgentStateChanged {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[ev.Agent] = append(r.states[ev.Agent], ev.State)
}

func (r *recorder) States(id domain.AgentID) []domain.AgentState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AgentState(nil), r.states[id]...)
}

func (r *recorder) reached(id domain.AgentID, st domain.AgentState) bool {
	for _, s := range r.States(id) {
		if s == st {
			return true
		}
	}
	return false
}

func (r *recorder) waitFor(t *testing.T, id domain.AgentID, st domain.AgentState) {
	t.Helper()
	require.Eventually(t, func() bool { return r.reached(id, st) }, time.Second, time.Millisecond,
		"car %s never reached %s (got %v)", id, st, r.States(id))
}

func newTestScheduler(t *testing.T, level float64, opts ...SchedulerOption) (*Scheduler, *infra.Tank, *recorder) {
	t.Helper()
	tank, err := infra.NewTank(1.0, infra.WithInitialLevel(level))
	require.NoError(t, err)
	rec := newRecorder()
	logger, _ := test.NewNullLogger()
	s := NewScheduler(tank, append([]SchedulerOption{WithEvents(rec), WithLogger(logger)}, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, tank, rec
}

func fixedRandom(v float64) SchedulerOption {
	return WithRandom(func() float64 { return v })
}

// sequentialIDs gera car-1, car-2, ... na ordem de admissão.
func sequentialIDs() SchedulerOption {
	var mu sync.Mutex
	n := 0
	return WithIDGenerator(func() domain.AgentID {
		mu.Lock()
		defer mu.Unlock()
		n++
		return domain.AgentID(fmt.Sprintf("car-%d", n))
	})
}

func TestScheduler_FastPathLifecycle(t *testing.T) {
	s, tank, rec := newTestScheduler(t, 1.0, fixedRandom(0.5), sequentialIDs())

	car, err := s.AddAgent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.AgentID("car-1"), car.ID)
	assert.Equal(t, domain.Arriving, car.State)
	assert.InDelta(t, 0.15, car.Demand, eps)

	rec.waitFor(t, "car-1", domain.Departed)
	assert.Equal(t, []domain.AgentState{domain.Arriving, domain.Consuming, domain.Departed}, rec.States("car-1"))
	assert.InDelta(t, 0.85, tank.Level(), eps)

	next, err := s.AddAgent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.AgentID("car-2"), next.ID)
	rec.waitFor(t, "car-2", domain.Departed)
}

func TestScheduler_DefaultIDsAreUnique(t *testing.T) {
	s, _, _ := newTestScheduler(t, 1.0, fixedRandom(0.1))

	a, err := s.AddAgent(context.Background())
	require.NoError(t, err)
	b, err := s.AddAgent(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestScheduler_TransitionRejectsIllegalEdge(t *testing.T) {
	tank, err := infra.NewTank(1.0)
	require.NoError(t, err)
	rec := newRecorder()
	logger, hook := test.NewNullLogger()
	s := NewScheduler(tank, WithEvents(rec), WithLogger(logger))
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	car := domain.Agent{ID: "car-x", State: domain.Departed}
	assert.False(t, s.transition(&car, domain.Consuming))
	assert.Equal(t, domain.Departed, car.State, "car keeps its last state")
	assert.Empty(t, rec.States("car-x"), "no event for an illegal edge")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "departed", hook.LastEntry().Data["from"])
	assert.Equal(t, "consuming", hook.LastEntry().Data["to"])

	car = domain.Agent{ID: "car-y", State: domain.Arriving}
	assert.True(t, s.transition(&car, domain.Waiting))
	assert.Equal(t, domain.Waiting, car.State)
	assert.Equal(t, []domain.AgentState{domain.Waiting}, rec.States("car-y"))
}

func TestScheduler_ScenarioB_WaitsThenConsumesAfterReplenish(t *testing.T) {
	s, tank, rec := newTestScheduler(t, 0.10, WithMaxDemandFraction(0.5), fixedRandom(0.5))

	car, err := s.AddAgent(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.25, car.Demand, eps)

	rec.waitFor(t, car.ID, domain.Waiting)
	assert.False(t, rec.reached(car.ID, domain.Consuming))

	level, err := tank.Replenish(0.30)
	require.NoError(t, err)
	assert.InDelta(t, 0.40, level, eps)

	rec.waitFor(t, car.ID, domain.Departed)
	assert.Equal(t, []domain.AgentState{domain.Arriving, domain.Waiting, domain.Consuming, domain.Departed}, rec.States(car.ID))
	assert.InDelta(t, 0.15, tank.Level(), eps)
}

func TestScheduler_ShutdownCancelsWaitingCars(t *testing.T) {
	s, tank, rec := newTestScheduler(t, 0, fixedRandom(0.5))

	car, err := s.AddAgent(context.Background())
	require.NoError(t, err)
	rec.waitFor(t, car.ID, domain.Waiting)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	assert.Equal(t, []domain.AgentState{domain.Arriving, domain.Waiting, domain.Cancelled}, rec.States(car.ID))
	assert.Equal(t, 0.0, tank.Level())
	assert.Equal(t, 0, s.Active())

	_, err = s.AddAgent(context.Background())
	assert.ErrorIs(t, err, domain.ErrSchedulerClosed)
}

func TestScheduler_ConsumeTimeoutMarksTimedOut(t *testing.T) {
	s, tank, rec := newTestScheduler(t, 0.05, fixedRandom(0.9), WithConsumeTimeout(20*time.Millisecond))

	car, err := s.AddAgent(context.Background())
	require.NoError(t, err)

	rec.waitFor(t, car.ID, domain.TimedOut)
	assert.Equal(t, []domain.AgentState{domain.Arriving, domain.Waiting, domain.TimedOut}, rec.States(car.ID))
	assert.Equal(t, 0.05, tank.Level())
}

func TestScheduler_SaturatedWhenNoSlotFrees(t *testing.T) {
	s, _, rec := newTestScheduler(t, 0, fixedRandom(0.5), WithSlots(infra.NewSlotPool(1), 10*time.Millisecond))

	first, err := s.AddAgent(context.Background())
	require.NoError(t, err)
	rec.waitFor(t, first.ID, domain.Waiting)

	_, err = s.AddAgent(context.Background())
	assert.ErrorIs(t, err, domain.ErrSchedulerSaturated)
	assert.Equal(t, 1, s.Active())
}

func TestScheduler_SlotFreedAfterDeparture(t *testing.T) {
	s, tank, rec := newTestScheduler(t, 0, fixedRandom(0.5), WithSlots(infra.NewSlotPool(1), time.Second))

	first, err := s.AddAgent(context.Background())
	require.NoError(t, err)
	rec.waitFor(t, first.ID, domain.Waiting)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = tank.Replenish(1)
	}()

	second, err := s.AddAgent(context.Background())
	require.NoError(t, err)
	rec.waitFor(t, first.ID, domain.Departed)
	rec.waitFor(t, second.ID, domain.Departed)
}

func TestScheduler_ShutdownTimesOutOnStuckDeparture(t *testing.T) {
	unblock := make(chan struct{})
	stuck := func(context.Context, domain.Agent) { <-unblock }
	s, _, rec := newTestScheduler(t, 1.0, fixedRandom(0.1), WithDeparture(stuck))

	car, err := s.AddAgent(context.Background())
	require.NoError(t, err)
	rec.waitFor(t, car.ID, domain.Consuming)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Shutdown(ctx), context.DeadlineExceeded)

	close(unblock)
	rec.waitFor(t, car.ID, domain.Departed)
}

func TestScheduler_DepartureDelayInterruptedByShutdown(t *testing.T) {
	s, _, rec := newTestScheduler(t, 1.0, fixedRandom(0.1), WithDeparture(DelayDeparture(time.Hour)))

	car, err := s.AddAgent(context.Background())
	require.NoError(t, err)
	rec.waitFor(t, car.ID, domain.Consuming)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.Equal(t, []domain.AgentState{domain.Arriving, domain.Consuming, domain.Departed}, rec.States(car.ID))
}

func TestScheduler_ManyCarsConserveFuel(t *testing.T) {
	// valores exatos em binário: 40 carros x 0.0625 == 20 x 0.125
	s, tank, rec := newTestScheduler(t, 0, WithMaxDemandFraction(0.125), fixedRandom(0.5))

	const cars = 40
	ids := make([]domain.AgentID, 0, cars)
	for i := 0; i < cars; i++ {
		car, err := s.AddAgent(context.Background())
		require.NoError(t, err)
		ids = append(ids, car.ID)
	}

	for i := 0; i < 20; i++ {
		// nunca deixa o clamp da capacidade descartar combustível
		require.Eventually(t, func() bool { return tank.Level() <= 0.875 }, time.Second, time.Millisecond)
		_, err := tank.Replenish(0.125)
		require.NoError(t, err)
	}

	for _, id := range ids {
		rec.waitFor(t, id, domain.Departed)
		states := rec.States(id)
		assert.Equal(t, domain.Arriving, states[0])
		assert.Equal(t, domain.Consuming, states[len(states)-2])
		assert.Equal(t, domain.Departed, states[len(states)-1])
	}
	assert.Equal(t, 0.0, tank.Level())
	assert.Eventually(t, func() bool { return s.Active() == 0 }, time.Second, time.Millisecond)
}
