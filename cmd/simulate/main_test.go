package main

import (
	"context"
	"testing"
	"time"

	"fuel-reservoir/reservoir/domain"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulate_EveryCarEndsInTerminalState(t *testing.T) {
	log, _ := test.NewNullLogger()
	cfg := config{
		carEvery:       5 * time.Millisecond,
		rechargeEvery:  20 * time.Millisecond,
		rechargeAmount: "0.5",
		capacity:       1,
		maxCars:        10,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	stats, err := simulate(ctx, cfg, log)
	require.NoError(t, err)

	total := stats.Total()
	require.Positive(t, total[domain.Arriving])
	assert.Equal(t, total[domain.Arriving], total[domain.Departed]+total[domain.TimedOut]+total[domain.Cancelled])
	assert.Equal(t, total[domain.Consuming], total[domain.Departed])
	assert.GreaterOrEqual(t, stats.LastLevel(), 0.0)
	assert.LessOrEqual(t, stats.LastLevel(), 1.0)
}

func TestSimulate_RejectsZeroIntervals(t *testing.T) {
	log, _ := test.NewNullLogger()
	_, err := simulate(context.Background(), config{capacity: 1}, log)
	assert.Error(t, err)
}
