package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fuel-reservoir/internal/env"
	"fuel-reservoir/reservoir/application"
	"fuel-reservoir/reservoir/domain"
	"fuel-reservoir/reservoir/infra"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Simulação sem HTTP: um ticker adiciona carros, outro recarrega o tanque,
// e no fim imprime o resumo do que aconteceu.
func main() {
	if err := env.LoadDotenv(); err != nil {
		logrus.Fatalf("dotenv error: %v", err)
	}
	cfg := readConfig()

	log := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.logLevel); err == nil {
		log.SetLevel(lvl)
	}
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if cfg.duration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, cfg.duration)
		defer stop()
	}

	stats, err := simulate(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("simulation failed")
		os.Exit(1)
	}

	total := stats.Total()
	log.WithFields(logrus.Fields{
		"arrived":   total[domain.Arriving],
		"waited":    total[domain.Waiting],
		"fueled":    total[domain.Consuming],
		"departed":  total[domain.Departed],
		"timed_out": total[domain.TimedOut],
		"cancelled": total[domain.Cancelled],
		"dispensed": stats.Dispensed(),
		"level":     stats.LastLevel(),
	}).Info("simulation summary")
}

type config struct {
	carEvery       time.Duration
	rechargeEvery  time.Duration
	rechargeAmount string
	duration       time.Duration

	capacity       float64
	maxCars        int
	consumeTimeout time.Duration
	departureDelay time.Duration
	logLevel       string
}

func readConfig() config {
	return config{
		carEvery:       env.Duration("SIM_CAR_EVERY", 500*time.Millisecond),
		rechargeEvery:  env.Duration("SIM_RECHARGE_EVERY", 3*time.Second),
		rechargeAmount: env.String("SIM_RECHARGE_AMOUNT", "0.5"),
		duration:       env.Duration("SIM_DURATION", 30*time.Second),
		capacity:       env.Float("FUEL_CAPACITY", 1),
		maxCars:        env.Int("MAX_CARS", 50),
		consumeTimeout: env.Duration("CONSUME_TIMEOUT", 0),
		departureDelay: env.Duration("DEPARTURE_DELAY", 3*time.Second),
		logLevel:       env.String("LOG_LEVEL", "info"),
	}
}

func simulate(ctx context.Context, cfg config, log *logrus.Logger) (*infra.MemoryStatsStore, error) {
	if cfg.carEvery <= 0 || cfg.rechargeEvery <= 0 {
		return nil, errors.New("SIM_CAR_EVERY and SIM_RECHARGE_EVERY must be > 0")
	}

	stats := infra.NewMemoryStatsStore()
	events := infra.NewDispatcher(infra.WithDispatcherLogger(log))
	events.Subscribe(infra.LogSink{Log: log, Capacity: cfg.capacity})
	events.Subscribe(infra.StatsSink{Store: stats, Log: log})

	tank, err := infra.NewTank(cfg.capacity, infra.WithPublisher(events))
	if err != nil {
		events.Close()
		return nil, err
	}
	scheduler := application.NewScheduler(tank,
		application.WithEvents(events),
		application.WithSlots(infra.NewSlotPool(cfg.maxCars), 0),
		application.WithConsumeTimeout(cfg.consumeTimeout),
		application.WithDeparture(application.DelayDeparture(cfg.departureDelay)),
		application.WithLogger(log),
	)

	cars := time.NewTicker(cfg.carEvery)
	defer cars.Stop()
	recharges := time.NewTicker(cfg.rechargeEvery)
	defer recharges.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-cars.C:
			admitCtx, cancel := context.WithTimeout(ctx, cfg.carEvery)
			if _, err := scheduler.AddAgent(admitCtx); err != nil {
				log.WithError(err).Warn("car not admitted")
			}
			cancel()
		case <-recharges.C:
			if _, err := application.Recharge(tank, cfg.rechargeAmount); err != nil {
				log.WithError(err).Error("recharge rejected")
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := scheduler.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("scheduler shutdown")
	}
	events.Close()
	return stats, nil
}
