package infra

import (
	"context"
	"sync"
	"time"

	"fuel-reservoir/reservoir/domain"

	"golang.org/x/time/rate"
)

// BucketStore mantém um token-bucket por (gatilho, cliente). Cada gatilho tem sua
// própria taxa: adicionar carros e reabastecer não disputam o mesmo bucket.
type BucketStore struct {
	rates   map[domain.Trigger]domain.Rate
	idleTTL time.Duration
	now     func() time.Time

	mu      sync.Mutex
	buckets map[domain.TriggerKey]*bucket
}

type bucket struct {
	lim     *rate.Limiter
	touched time.Time
}

type BucketOption func(*BucketStore)

// WithIdleTTL define após quanto tempo sem gatilhos um bucket pode ser descartado.
func WithIdleTTL(d time.Duration) BucketOption {
	return func(s *BucketStore) {
		if d > 0 {
			s.idleTTL = d
		}
	}
}

// NewBucketStore recebe a taxa de cada gatilho. Gatilhos ausentes ou com
// Rate.Unlimited() passam sempre.
func NewBucketStore(rates map[domain.Trigger]domain.Rate, opts ...BucketOption) *BucketStore {
	s := &BucketStore{
		rates:   make(map[domain.Trigger]domain.Rate, len(rates)),
		idleTTL: 15 * time.Minute,
		now:     time.Now,
		buckets: make(map[domain.TriggerKey]*bucket),
	}
	for tr, r := range rates {
		if !r.Unlimited() {
			if r.Burst < 1 {
				r.Burst = 1
			}
			s.rates[tr] = r
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rate devolve a taxa configurada para o gatilho.
func (s *BucketStore) Rate(tr domain.Trigger) (domain.Rate, bool) {
	r, ok := s.rates[tr]
	return r, ok
}

// Get implementa domain.LimiterStore.
func (s *BucketStore) Get(key domain.TriggerKey) domain.Limiter {
	r, ok := s.rates[key.Trigger]
	if !ok {
		return nil
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(r.RPS), r.Burst)}
		s.buckets[key] = b
	}
	b.touched = now
	return b.lim
}

func (s *BucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// Sweep descarta buckets sem gatilho há mais de idleTTL e retorna quantos saíram.
// Um bucket parado nesse tempo já recarregou; recriá-lo cheio não muda a decisão.
func (s *BucketStore) Sweep() int {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, b := range s.buckets {
		if b.touched.Before(cutoff) {
			delete(s.buckets, k)
			n++
		}
	}
	return n
}

// StartJanitor roda Sweep a cada every até ctx encerrar. every <= 0 não faz nada.
func (s *BucketStore) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Sweep()
			}
		}
	}()
}
