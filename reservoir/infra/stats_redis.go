package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fuel-reservoir/reservoir/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore grava contadores de transições em hashes do Redis:
//
//	<prefix>:total              campo = estado
//	<prefix>:minute:<yyyymmddhhmm> campo = estado (com TTL)
//	<prefix>:dispensed          campo "fuel" (soma das demandas consumidas)
//	<prefix>:car:<id>           campos state/demand (com TTL, opcional)
//	<prefix>:throttled          campo = gatilho (recusas)
//	<prefix>:throttled:minute:<yyyymmddhhmm> campo = gatilho (com TTL)
type RedisStatsStore struct {
	rdb *redis.Client

	prefix string
	// ttl aplica apenas em chaves de série temporal / por carro.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackAgents bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackAgents(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackAgents = track }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "fuel:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := ev.State.String()

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	if s.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	if ev.State == domain.Consuming && ev.Demand > 0 {
		pipe.HIncrByFloat(ctx, s.prefix+":dispensed", "fuel", ev.Demand)
	}

	if s.trackAgents {
		id := strings.TrimSpace(string(ev.Agent))
		if id != "" {
			carKey := s.prefix + ":car:" + id
			pipe.HSet(ctx, carKey, "state", field, "demand", strconv.FormatFloat(ev.Demand, 'f', -1, 64))
			if s.ttl > 0 {
				pipe.Expire(ctx, carKey, s.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStatsStore) RecordThrottle(ctx context.Context, ev domain.ThrottleEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Trigger)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":throttled", field, 1)
	if s.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:throttled:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}
