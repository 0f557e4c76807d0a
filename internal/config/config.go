package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/tripmatch/internal/scoring"
)

const (
	MatchModeInline = "inline"
	MatchModeAsync  = "async"
)

// ServerConfig captures all tunable parameters for the API and consumer
// processes. Values are loaded from the environment (and an optional .env
// file) with defaults that let the binaries run locally without setup.
type ServerConfig struct {
	HTTPAddr        string
	MetricsAddr     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr      string
	RedisPassword  string
	RedisGeoPrefix string
	IdempotencyTTL time.Duration

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string

	PGDSN         string
	PGMaxConns    int
	RunMigrations bool

	OSRMEndpoint  string
	OSRMRPS       float64
	RouteCacheTTL time.Duration
	SpeedMps      float64

	Weights           scoring.Weights
	MinScore          float64
	NotifyThreshold   float64
	ExactRadiusMeters float64

	MatchMode           string
	Workers             int
	MatchTTL            time.Duration
	ExpirySweepInterval time.Duration
	PrefsRetryAttempts  int
	PrefsRetryDelay     time.Duration

	WebhookEndpoint string
	LogLevel        string
}

func defaultServerConfig() ServerConfig {
	sc := scoring.DefaultConfig()
	return ServerConfig{
		HTTPAddr:            ":8080",
		MetricsAddr:         ":2112",
		ReadTimeout:         5 * time.Second,
		WriteTimeout:        10 * time.Second,
		IdleTimeout:         120 * time.Second,
		ShutdownTimeout:     15 * time.Second,
		RedisGeoPrefix:      "trips_geo",
		IdempotencyTTL:      24 * time.Hour,
		KafkaTopic:          "trip-events",
		KafkaGroup:          "tripmatch-consumer",
		PGMaxConns:          10,
		OSRMRPS:             5,
		RouteCacheTTL:       10 * time.Minute,
		SpeedMps:            8,
		Weights:             sc.Weights,
		MinScore:            sc.MinScore,
		NotifyThreshold:     0.6,
		ExactRadiusMeters:   sc.ExactRadiusMeters,
		MatchMode:           MatchModeInline,
		Workers:             8,
		MatchTTL:            24 * time.Hour,
		ExpirySweepInterval: time.Minute,
		PrefsRetryAttempts:  3,
		PrefsRetryDelay:     100 * time.Millisecond,
		LogLevel:            "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoPrefix, "REDIS_GEO_PREFIX")
	setDurationFromEnv(&cfg.IdempotencyTTL, "IDEMPOTENCY_TTL", &errs)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")

	cfg.PGDSN = os.Getenv("PG_DSN")
	setIntFromEnv(&cfg.PGMaxConns, "PG_MAX_CONNS", &errs)
	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	setStringFromEnv(&cfg.OSRMEndpoint, "OSRM_ENDPOINT")
	setFloatFromEnv(&cfg.OSRMRPS, "OSRM_RPS", &errs)
	setDurationFromEnv(&cfg.RouteCacheTTL, "ROUTE_CACHE_TTL", &errs)
	setFloatFromEnv(&cfg.SpeedMps, "DEFAULT_SPEED_MPS", &errs)

	setFloatFromEnv(&cfg.Weights.Route, "MATCH_WEIGHT_ROUTE", &errs)
	setFloatFromEnv(&cfg.Weights.Time, "MATCH_WEIGHT_TIME", &errs)
	setFloatFromEnv(&cfg.Weights.Preferences, "MATCH_WEIGHT_PREFERENCES", &errs)
	setFloatFromEnv(&cfg.Weights.Price, "MATCH_WEIGHT_PRICE", &errs)
	setFloatFromEnv(&cfg.MinScore, "MATCH_MIN_SCORE", &errs)
	setFloatFromEnv(&cfg.NotifyThreshold, "MATCH_NOTIFY_THRESHOLD", &errs)
	setFloatFromEnv(&cfg.ExactRadiusMeters, "MATCH_EXACT_RADIUS_METERS", &errs)

	if v := os.Getenv("MATCH_MODE"); v != "" {
		cfg.MatchMode = strings.ToLower(strings.TrimSpace(v))
	}
	setIntFromEnv(&cfg.Workers, "MATCH_WORKERS", &errs)
	setDurationFromEnv(&cfg.MatchTTL, "MATCH_TTL", &errs)
	setDurationFromEnv(&cfg.ExpirySweepInterval, "MATCH_EXPIRY_INTERVAL", &errs)
	setIntFromEnv(&cfg.PrefsRetryAttempts, "PREFS_RETRY_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.PrefsRetryDelay, "PREFS_RETRY_DELAY", &errs)

	cfg.WebhookEndpoint = strings.TrimSpace(os.Getenv("NOTIFY_WEBHOOK_URL"))

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.Workers <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_WORKERS must be > 0"))
	}
	if cfg.MatchTTL <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_TTL must be > 0"))
	}
	if cfg.ExpirySweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_EXPIRY_INTERVAL must be > 0"))
	}
	if cfg.NotifyThreshold < 0 || cfg.NotifyThreshold > 1 {
		errs = append(errs, fmt.Errorf("MATCH_NOTIFY_THRESHOLD must be within [0, 1]"))
	}
	if cfg.MatchMode != MatchModeInline && cfg.MatchMode != MatchModeAsync {
		errs = append(errs, fmt.Errorf("MATCH_MODE must be %q or %q", MatchModeInline, MatchModeAsync))
	}
	if cfg.MatchMode == MatchModeAsync && len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, fmt.Errorf("MATCH_MODE=async requires KAFKA_BROKERS"))
	}
	if err := cfg.ScoringConfig().Validate(); err != nil {
		errs = append(errs, err)
	}

	return cfg, errors.Join(errs...)
}

// ScoringConfig returns the scorer settings carried by the environment.
func (c ServerConfig) ScoringConfig() scoring.Config {
	sc := scoring.DefaultConfig()
	sc.Weights = c.Weights
	sc.MinScore = c.MinScore
	sc.ExactRadiusMeters = c.ExactRadiusMeters
	sc.SpeedMps = c.SpeedMps
	return sc
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
