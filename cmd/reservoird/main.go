package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fuel-reservoir/internal/env"
	"fuel-reservoir/reservoir"
	"fuel-reservoir/reservoir/application"
	"fuel-reservoir/reservoir/domain"
	"fuel-reservoir/reservoir/infra"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := env.LoadDotenv(); err != nil {
		logrus.Fatalf("dotenv error: %v", err)
	}
	cfg, err := readConfig()
	if err != nil {
		logrus.Fatalf("config error: %v", err)
	}
	log, err := newLogger(cfg.logLevel, cfg.logFormat)
	if err != nil {
		logrus.Fatalf("config error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("reservoird stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, log *logrus.Logger) error {
	events := infra.NewDispatcher(infra.WithDispatcherLogger(log))
	defer events.Close()

	events.Subscribe(infra.LogSink{Log: log, Capacity: cfg.capacity})

	if cfg.statsEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.statsRedisAddr,
			Password: cfg.statsRedisPassword,
			DB:       cfg.statsRedisDB,
		})
		defer func() { _ = rdb.Close() }()

		if err := pingRedis(ctx, rdb, log); err != nil {
			return err
		}
		store := infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.statsPrefix),
			infra.WithStatsTTL(cfg.statsTTL),
			infra.WithStatsBucket(cfg.statsBucket),
			infra.WithStatsTrackAgents(cfg.statsTrackCars),
		)
		events.Subscribe(infra.StatsSink{Store: store, Timeout: time.Second, Log: log})
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := infra.NewMetricsSink(reg)
	if err != nil {
		return errors.Wrap(err, "metrics")
	}
	events.Subscribe(metrics)

	tank, err := infra.NewTank(cfg.capacity, infra.WithInitialLevel(cfg.initial), infra.WithPublisher(events))
	if err != nil {
		return errors.Wrap(err, "reservoir")
	}

	scheduler := application.NewScheduler(tank,
		application.WithEvents(events),
		application.WithSlots(infra.NewSlotPool(cfg.maxCars), cfg.admitTimeout),
		application.WithMaxDemandFraction(cfg.maxDemandFraction),
		application.WithConsumeTimeout(cfg.consumeTimeout),
		application.WithDeparture(application.DelayDeparture(cfg.departureDelay)),
		application.WithLogger(log),
	)

	triggers := reservoir.TriggerOptions{
		KeyHeader:          cfg.triggerKeyHeader,
		TrustXForwardedFor: cfg.trustXFF,
	}
	if !cfg.carsRate.Unlimited() || !cfg.rechargeRate.Unlimited() {
		buckets := infra.NewBucketStore(map[domain.Trigger]domain.Rate{
			domain.TriggerAddCar:   cfg.carsRate,
			domain.TriggerRecharge: cfg.rechargeRate,
		})
		buckets.StartJanitor(ctx, 2*time.Minute)
		triggers.Gate = application.NewTriggerGate(buckets, events, time.Second)
	}

	h := reservoir.Handler(reservoir.Options{
		Spawner:   scheduler,
		Reservoir: tank,
		Events:    events,
		Triggers:  triggers,
		Streams: reservoir.StreamOptions{
			Max:            cfg.maxEventStreams,
			AcquireTimeout: 100 * time.Millisecond,
		},
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Log:     log,
	})

	// sem WriteTimeout: /events é um stream longo
	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       90 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":     cfg.listenAddr,
			"capacity": cfg.capacity,
			"initial":  cfg.initial,
			"max_cars": cfg.maxCars,
		}).Info("reservoird listening")
		log.WithFields(logrus.Fields{
			"cars_rps":       cfg.carsRate.RPS,
			"cars_burst":     cfg.carsRate.Burst,
			"recharge_rps":   cfg.rechargeRate.RPS,
			"recharge_burst": cfg.rechargeRate.Burst,
			"key_header":     cfg.triggerKeyHeader,
			"trust_xff":      cfg.trustXFF,
		}).Info("trigger limits")
		log.WithFields(logrus.Fields{
			"enabled": cfg.statsEnabled,
			"redis":   cfg.statsRedisAddr,
			"bucket":  cfg.statsBucket,
			"ttl":     cfg.statsTTL,
		}).Info("stats")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = errors.Wrap(err, "server")
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.shutdownTimeout)
	defer cancelShutdown()

	// ordem: borda, carros, depois o dispatcher (defer) drena os eventos finais
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := scheduler.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("scheduler shutdown")
	}
	log.WithField("level", tank.Level()).Info("reservoird stopped")
	return runErr
}

// pingRedis tenta o ping com backoff exponencial antes de desistir.
func pingRedis(ctx context.Context, rdb *redis.Client, log logrus.FieldLogger) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second

	op := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return rdb.Ping(pingCtx).Err()
	}
	notify := func(err error, next time.Duration) {
		log.WithError(err).WithField("retry_in", next).Warn("redis stats ping failed")
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return errors.Wrap(err, "redis stats ping")
	}
	return nil
}
