package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	DatabaseURL    string
	ClerkSecretKey string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ScoreCacheTTL time.Duration

	FCMCredentialsFile string

	LogMode string
	LogPath string

	RateLimitRPS   float64
	RateLimitBurst int

	StreakAlertInterval time.Duration

	MetricsUser string
	MetricsPass string
	PprofSecret string

	ClerkWebhookSecret string
}

// Load reads a .env file when present and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from any lookup function, so tests never touch the real environment.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:               withDefault(getenv("PORT"), "3333"),
		DatabaseURL:        getenv("DATABASE_URL"),
		ClerkSecretKey:     getenv("CLERK_SECRET_KEY"),
		RedisAddr:          getenv("REDIS_ADDR"),
		RedisPassword:      getenv("REDIS_PASSWORD"),
		FCMCredentialsFile: withDefault(getenv("FCM_CREDENTIALS_FILE"), "./serviceAccountKey.json"),
		LogMode:            withDefault(getenv("LOG_MODE"), "prod"),
		LogPath:            withDefault(getenv("LOG_PATH"), "./logs/app.log"),
		MetricsUser:        getenv("METRICS_USER"),
		MetricsPass:        getenv("METRICS_PASS"),
		PprofSecret:        getenv("PPROF_SECRET"),
		ClerkWebhookSecret: getenv("CLERK_WEBHOOK_SECRET"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL environment variable is not set")
	}
	if cfg.ClerkSecretKey == "" {
		return nil, errors.New("CLERK_SECRET_KEY environment variable is not set")
	}

	var err error
	if cfg.RedisDB, err = intVar(getenv, "REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.ScoreCacheTTL, err = durationVar(getenv, "SCORE_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = intVar(getenv, "RATE_LIMIT_BURST", 30); err != nil {
		return nil, err
	}
	if cfg.StreakAlertInterval, err = durationVar(getenv, "STREAK_ALERT_INTERVAL", time.Hour); err != nil {
		return nil, err
	}

	cfg.RateLimitRPS = 5
	if v := getenv("RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps <= 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_RPS %q", v)
		}
		cfg.RateLimitRPS = rps
	}

	if cfg.LogMode != "prod" && cfg.LogMode != "dev" {
		return nil, fmt.Errorf("invalid LOG_MODE %q: want prod or dev", cfg.LogMode)
	}
	return cfg, nil
}

func (c *Config) CacheEnabled() bool { return c.RedisAddr != "" }

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intVar(getenv func(string) string, key string, def int) (int, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return n, nil
}

func durationVar(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return d, nil
}
