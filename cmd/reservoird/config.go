package main

import (
	"strings"
	"time"

	"fuel-reservoir/internal/env"
	"fuel-reservoir/reservoir/application"
	"fuel-reservoir/reservoir/domain"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type config struct {
	listenAddr string

	capacity          float64
	initial           float64
	maxDemandFraction float64
	maxCars           int
	admitTimeout      time.Duration
	consumeTimeout    time.Duration
	departureDelay    time.Duration

	carsRate         domain.Rate
	rechargeRate     domain.Rate
	triggerKeyHeader string
	trustXFF         bool
	maxEventStreams  int

	statsEnabled       bool
	statsRedisAddr     string
	statsRedisPassword string
	statsRedisDB       int
	statsPrefix        string
	statsTTL           time.Duration
	statsBucket        string
	statsTrackCars     bool

	logLevel        string
	logFormat       string
	shutdownTimeout time.Duration
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = env.String("LISTEN_ADDR", ":8080")

	cfg.capacity = env.Float("FUEL_CAPACITY", 1)
	cfg.initial = env.Float("FUEL_INITIAL", cfg.capacity)
	cfg.maxDemandFraction = env.Float("MAX_DEMAND_FRACTION", application.DefaultMaxDemandFraction)
	cfg.maxCars = env.Int("MAX_CARS", 100)
	cfg.admitTimeout = env.Duration("ADMIT_TIMEOUT", 100*time.Millisecond)
	cfg.consumeTimeout = env.Duration("CONSUME_TIMEOUT", 0)
	cfg.departureDelay = env.Duration("DEPARTURE_DELAY", 3*time.Second)

	// <GATILHO>_RPS=0 deixa o gatilho sem limite.
	cfg.carsRate = readRate("CARS", 0)
	cfg.rechargeRate = readRate("RECHARGE", 0)
	cfg.triggerKeyHeader = env.String("TRIGGER_KEY_HEADER", "")
	cfg.trustXFF = env.Bool("TRUST_XFF", false)
	cfg.maxEventStreams = env.Int("MAX_EVENT_STREAMS", 16)

	cfg.statsEnabled = env.Bool("STATS_ENABLED", false)
	cfg.statsRedisAddr = env.String("STATS_REDIS_ADDR", "")
	cfg.statsRedisPassword = env.String("STATS_REDIS_PASSWORD", "")
	cfg.statsRedisDB = env.Int("STATS_REDIS_DB", 0)
	cfg.statsPrefix = env.String("STATS_PREFIX", "fuel:stats")
	cfg.statsTTL = env.Duration("STATS_TTL", 24*time.Hour)
	cfg.statsBucket = env.String("STATS_BUCKET", "minute")
	cfg.statsTrackCars = env.Bool("STATS_TRACK_CARS", false)

	cfg.logLevel = env.String("LOG_LEVEL", "info")
	cfg.logFormat = env.String("LOG_FORMAT", "text")
	cfg.shutdownTimeout = env.Duration("SHUTDOWN_TIMEOUT", 10*time.Second)

	if cfg.capacity <= 0 {
		return config{}, errors.New("FUEL_CAPACITY must be > 0")
	}
	if cfg.initial < 0 || cfg.initial > cfg.capacity {
		return config{}, errors.New("FUEL_INITIAL must be within [0, FUEL_CAPACITY]")
	}
	if cfg.maxDemandFraction <= 0 || cfg.maxDemandFraction > 1 {
		return config{}, errors.New("MAX_DEMAND_FRACTION must be within (0, 1]")
	}
	if cfg.maxCars < 0 {
		return config{}, errors.New("MAX_CARS must be >= 0")
	}
	for name, r := range map[string]domain.Rate{"CARS": cfg.carsRate, "RECHARGE": cfg.rechargeRate} {
		if r.RPS < 0 {
			return config{}, errors.Errorf("%s_RPS must be >= 0", name)
		}
		if !r.Unlimited() && r.Burst <= 0 {
			return config{}, errors.Errorf("%s_BURST must be > 0", name)
		}
	}
	if cfg.statsEnabled && strings.TrimSpace(cfg.statsRedisAddr) == "" {
		return config{}, errors.New("STATS_REDIS_ADDR is required when STATS_ENABLED=true")
	}
	return cfg, nil
}

// readRate lê <prefix>_RPS e <prefix>_BURST. Com RPS baixo (ex: 0.5) um burst alto
// deixa passar muitos gatilhos de uma vez, então o padrão cai para 1.
func readRate(prefix string, defRPS float64) domain.Rate {
	r := domain.Rate{RPS: env.Float(prefix+"_RPS", defRPS)}
	if burst, ok := env.LookupInt(prefix + "_BURST"); ok {
		r.Burst = burst
	} else {
		r.Burst = 10
		if r.RPS > 0 && r.RPS < 1 {
			r.Burst = 1
		}
	}
	return r
}

func newLogger(level, format string) (*logrus.Logger, error) {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "LOG_LEVEL")
	}
	log.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, errors.Errorf("LOG_FORMAT must be text or json, got %q", format)
	}
	return log, nil
}
