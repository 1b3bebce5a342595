package infra

import (
	"context"
	"sync"
	"testing"
	"time"

	"fuel-reservoir/reservoir/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func carKey(client string) domain.TriggerKey {
	return domain.TriggerKey{Trigger: domain.TriggerAddCar, Client: client}
}

func rechargeKey(client string) domain.TriggerKey {
	return domain.TriggerKey{Trigger: domain.TriggerRecharge, Client: client}
}

func TestBucketStore_SameClientAndTriggerShareBucket(t *testing.T) {
	s := NewBucketStore(map[domain.Trigger]domain.Rate{
		domain.TriggerAddCar: {RPS: 0.02, Burst: 1},
	})

	lim := s.Get(carKey("10.0.0.1"))
	require.NotNil(t, lim)
	assert.Same(t, lim, s.Get(carKey("10.0.0.1")))
	assert.True(t, lim.Allow(), "first car passes")
	assert.False(t, s.Get(carKey("10.0.0.1")).Allow(), "second immediate car throttled (burst=1)")
	assert.True(t, s.Get(carKey("10.0.0.2")).Allow(), "other client has its own bucket")
}

func TestBucketStore_TriggersHaveSeparateBuckets(t *testing.T) {
	s := NewBucketStore(map[domain.Trigger]domain.Rate{
		domain.TriggerAddCar:   {RPS: 0.02, Burst: 1},
		domain.TriggerRecharge: {RPS: 0.02, Burst: 2},
	})

	assert.True(t, s.Get(carKey("pump")).Allow())
	assert.False(t, s.Get(carKey("pump")).Allow())

	// esgotar carros não afeta reabastecer, e reabastecer tem sua própria rajada
	assert.True(t, s.Get(rechargeKey("pump")).Allow())
	assert.True(t, s.Get(rechargeKey("pump")).Allow())
	assert.False(t, s.Get(rechargeKey("pump")).Allow())

	r, ok := s.Rate(domain.TriggerRecharge)
	require.True(t, ok)
	assert.Equal(t, domain.Rate{RPS: 0.02, Burst: 2}, r)
	assert.Equal(t, 2, s.Len())
}

func TestBucketStore_UnlimitedTriggerHasNoLimiter(t *testing.T) {
	s := NewBucketStore(map[domain.Trigger]domain.Rate{
		domain.TriggerAddCar:   {RPS: 1, Burst: 0},
		domain.TriggerRecharge: {RPS: 0},
	})

	assert.Nil(t, s.Get(rechargeKey("pump")))
	_, ok := s.Rate(domain.TriggerRecharge)
	assert.False(t, ok)

	// burst 0 vira 1: pelo menos um gatilho passa
	r, _ := s.Rate(domain.TriggerAddCar)
	assert.Equal(t, 1, r.Burst)
	assert.True(t, s.Get(carKey("pump")).Allow())
}

func TestBucketStore_SweepRemovesIdleBuckets(t *testing.T) {
	var mu sync.Mutex
	now := time.Unix(1_700_000_000, 0)
	s := NewBucketStore(map[domain.Trigger]domain.Rate{domain.TriggerAddCar: {RPS: 10, Burst: 1}},
		WithIdleTTL(time.Minute))
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	before := s.Get(carKey("a"))
	mu.Lock()
	now = now.Add(30 * time.Second)
	mu.Unlock()
	s.Get(carKey("b"))

	mu.Lock()
	now = now.Add(45 * time.Second)
	mu.Unlock()
	assert.Equal(t, 1, s.Sweep(), "only a is idle for more than a minute")
	assert.Equal(t, 1, s.Len())

	assert.NotSame(t, before, s.Get(carKey("a")), "expected limiter to be recreated after sweep")
}

func TestBucketStore_JanitorRunsUntilCancelled(t *testing.T) {
	s := NewBucketStore(map[domain.Trigger]domain.Rate{domain.TriggerAddCar: {RPS: 10, Burst: 1}},
		WithIdleTTL(time.Millisecond))
	s.Get(carKey("k"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartJanitor(ctx, 2*time.Millisecond)

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 2*time.Millisecond)
}
