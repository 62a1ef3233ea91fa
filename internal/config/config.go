package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	PlannerEndpoint string
	PlannerTimeout  time.Duration
	ETACacheTTL     time.Duration
	DefaultSpeedMps float64

	JWTSecret string

	SubscriberQueueSize int
	ScheduleWindow      time.Duration

	FareBaseCents  int64
	FarePerKmCents int64
	FareCurrency   string
	StripeAPIKey   string

	NotifyEndpoint string
	NotifyAPIKey   string

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:            ":8080",
		ReadTimeout:         5 * time.Second,
		WriteTimeout:        10 * time.Second,
		IdleTimeout:         120 * time.Second,
		ShutdownTimeout:     15 * time.Second,
		RedisGeoKey:         "vehicles_geo",
		KafkaTopic:          "ride-locations",
		PlannerTimeout:      800 * time.Millisecond,
		ETACacheTTL:         30 * time.Second,
		DefaultSpeedMps:     8,
		SubscriberQueueSize: 16,
		ScheduleWindow:      5 * time.Hour,
		FareBaseCents:       250,
		FarePerKmCents:      120,
		FareCurrency:        "usd",
		LogLevel:            "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	cfg.PlannerEndpoint = strings.TrimSpace(os.Getenv("PLANNER_ENDPOINT"))
	setDurationFromEnv(&cfg.PlannerTimeout, "PLANNER_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ETACacheTTL, "ETA_CACHE_TTL", &errs)
	setFloatFromEnv(&cfg.DefaultSpeedMps, "DEFAULT_SPEED_MPS", &errs)

	cfg.JWTSecret = os.Getenv("JWT_SECRET")

	setIntFromEnv(&cfg.SubscriberQueueSize, "SUBSCRIBER_QUEUE_SIZE", &errs)
	setDurationFromEnv(&cfg.ScheduleWindow, "SCHEDULE_WINDOW", &errs)

	setInt64FromEnv(&cfg.FareBaseCents, "FARE_BASE_CENTS", &errs)
	setInt64FromEnv(&cfg.FarePerKmCents, "FARE_PER_KM_CENTS", &errs)
	setStringFromEnv(&cfg.FareCurrency, "FARE_CURRENCY")
	cfg.StripeAPIKey = os.Getenv("STRIPE_API_KEY")

	cfg.NotifyEndpoint = strings.TrimSpace(os.Getenv("NOTIFY_ENDPOINT"))
	cfg.NotifyAPIKey = os.Getenv("NOTIFY_API_KEY")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be set"))
	}
	if cfg.SubscriberQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("SUBSCRIBER_QUEUE_SIZE must be > 0"))
	}
	if cfg.DefaultSpeedMps <= 0 {
		errs = append(errs, fmt.Errorf("DEFAULT_SPEED_MPS must be > 0"))
	}

	return cfg, errors.Join(errs...)
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

func setInt64FromEnv(target *int64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
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
