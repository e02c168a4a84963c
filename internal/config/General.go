package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultSweepInterval = time.Minute
	DefaultWebPort       = 8080
	DefaultLogLevel      = "info"
)

// AppConfig holds the service configuration loaded from environment variables.
type AppConfig struct {
	// BootstrapFile is the TOML file describing the deployment the engine runs against.
	BootstrapFile string
	LogLevel      string
	// LogFile, when set, receives a copy of every log line.
	LogFile string
	// SweepInterval is the pause between liquidation sweeps.
	SweepInterval time.Duration
	WebPort       int
	DB            DBSettings
}

// LoadConfig reads the environment. Only SMARTVAULT_BOOTSTRAP_FILE is required.
func LoadConfig() (AppConfig, error) {
	log.Info().Msg("Loading application configuration from environment variables...")

	var cfg AppConfig
	var err error

	cfg.BootstrapFile, err = getEnv("SMARTVAULT_BOOTSTRAP_FILE")
	if err != nil {
		return AppConfig{}, err
	}
	cfg.LogLevel = getEnvOr("LOG_LEVEL", DefaultLogLevel)
	cfg.LogFile = getEnvOr("LOG_FILE", "")

	cfg.SweepInterval, err = getEnvAsDurationOr("SWEEP_INTERVAL", DefaultSweepInterval)
	if err != nil {
		return AppConfig{}, err
	}
	if cfg.SweepInterval <= 0 {
		return AppConfig{}, errors.New("SWEEP_INTERVAL must be positive")
	}

	port, err := getEnvAsUint64Or("WEB_PORT", DefaultWebPort)
	if err != nil {
		return AppConfig{}, err
	}
	if port == 0 || port > 65535 {
		return AppConfig{}, errors.New("WEB_PORT must be a valid TCP port, got: " + strconv.FormatUint(port, 10))
	}
	cfg.WebPort = int(port)

	cfg.DB, err = LoadDBSettings()
	if err != nil {
		return AppConfig{}, err
	}

	log.Debug().
		Str("BootstrapFile", cfg.BootstrapFile).
		Dur("SweepInterval", cfg.SweepInterval).
		Int("WebPort", cfg.WebPort).
		Bool("Database", cfg.DB.Enabled()).
		Msg("Configuration loaded successfully.")

	return cfg, nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

func getEnvOr(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsUint64Or retrieves an environment variable as a uint64, or fallback when unset.
func getEnvAsUint64Or(key string, fallback uint64) (uint64, error) {
	valueStr := getEnvOr(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDurationOr retrieves an environment variable such as "90s" as a duration, or fallback when unset.
func getEnvAsDurationOr(key string, fallback time.Duration) (time.Duration, error) {
	valueStr := getEnvOr(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a duration like 30s or 5m, got: " + valueStr)
	}
	return value, nil
}
