package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// BackendContextTTL is the idle duration after which the cart backend
	// silently discards a context handle.
	BackendContextTTL time.Duration
	// SessionIdleTTL is the idle duration after which a whole experience
	// session becomes eligible for the sweep.
	SessionIdleTTL time.Duration
	SweepInterval  time.Duration

	TaxRate float64

	KafkaBrokers string
	KafkaTopic   string
}

// Load reads configuration from the environment, falling back to defaults.
// A .env file is honored when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:         getEnv("PORT", "8087"),
		KafkaBrokers: getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "checkout.completed"),
	}

	var err error
	if cfg.BackendContextTTL, err = getDuration("BACKEND_CONTEXT_TTL", 2*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.SessionIdleTTL, err = getDuration("SESSION_IDLE_TTL", 30*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.TaxRate, err = getFloat("TAX_RATE", 0.10); err != nil {
		return Config{}, err
	}

	if cfg.BackendContextTTL <= 0 || cfg.SessionIdleTTL <= 0 || cfg.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("durations must be positive")
	}
	if cfg.TaxRate < 0 {
		return Config{}, fmt.Errorf("TAX_RATE cannot be negative")
	}
	return cfg, nil
}

// Brokers splits the configured broker list; empty when kafka is disabled.
func (c Config) Brokers() []string {
	if c.KafkaBrokers == "" {
		return nil
	}
	return strings.Split(c.KafkaBrokers, ",")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
