package config

import (
	"errors"
	"strconv"

	"github.com/rs/zerolog/log"
)

// DBSettings are the PostgreSQL connection settings. An empty Host runs the engine without persistence.
type DBSettings struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (s DBSettings) Enabled() bool { return s.Host != "" }

// LoadDBSettings reads the DB_* variables. Used by LoadConfig and scripts/reset_db.go.
func LoadDBSettings() (DBSettings, error) {
	settings := DBSettings{Host: getEnvOr("DB_HOST", "")}
	if !settings.Enabled() {
		log.Warn().Msg("DB_HOST not set, running without persistence")
		return settings, nil
	}

	port, err := getEnvAsUint64Or("DB_PORT", 5432)
	if err != nil {
		return DBSettings{}, err
	}
	if port == 0 || port > 65535 {
		return DBSettings{}, errors.New("DB_PORT must be a valid TCP port, got: " + strconv.FormatUint(port, 10))
	}
	settings.Port = int(port)

	if settings.User, err = getEnv("DB_USER"); err != nil {
		return DBSettings{}, err
	}
	settings.Password = getEnvOr("DB_PASSWORD", "")
	if settings.Name, err = getEnv("DB_NAME"); err != nil {
		return DBSettings{}, err
	}
	settings.SSLMode = getEnvOr("DB_SSLMODE", "disable")

	log.Debug().
		Str("Host", settings.Host).
		Int("Port", settings.Port).
		Str("Name", settings.Name).
		Msg("Database configuration loaded successfully.")
	return settings, nil
}
