package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/the-standard/smart-vault/internal/config"
	"github.com/the-standard/smart-vault/internal/logger"
	"github.com/the-standard/smart-vault/internal/state"
)

func main() {
	sweepsOnly := flag.Bool("sweeps-only", false, "clear sweep history and the sweep counter, keep vaults and collateral")
	flag.Parse()

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger.Initialize(logLevel)
	log.Info().Msg("Starting database reset script...")

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found or error loading .env file. Relying on OS environment variables.")
	}

	settings, err := config.LoadDBSettings()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid database configuration")
	}
	if !settings.Enabled() {
		log.Fatal().Msg("DB_HOST environment variable not set.")
	}

	dbCfg := state.DBConfig{
		Host:     settings.Host,
		Port:     settings.Port,
		User:     settings.User,
		Password: settings.Password,
		DBName:   settings.Name,
		SSLMode:  settings.SSLMode,
	}

	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("user", dbCfg.User).
		Str("dbname", dbCfg.DBName).
		Msg("Connecting to database")

	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database connection")
	}
	defer state.CloseDB()

	ctx := context.Background()

	if *sweepsOnly {
		if _, err := state.DB.ExecContext(ctx, `TRUNCATE sweep_cycles;`); err != nil {
			log.Fatal().Err(err).Msg("Failed to clear sweep history")
		}
		if err := (state.CycleCounter{}).Reset(ctx, 0); err != nil {
			log.Fatal().Err(err).Msg("Failed to reset sweep counter")
		}
		log.Info().Msg("Sweep history cleared")
		return
	}

	log.Info().Msg("Connected to database. Attempting to drop all tables...")

	dropTablesQuery := `
		DROP TABLE IF EXISTS vaults CASCADE;
		DROP TABLE IF EXISTS collateral_assets CASCADE;
		DROP TABLE IF EXISTS sweep_cycles CASCADE;
		DROP TABLE IF EXISTS cycle_counter CASCADE;
		DROP TABLE IF EXISTS schema_version CASCADE;
	`
	if _, err := state.DB.ExecContext(ctx, dropTablesQuery); err != nil {
		log.Fatal().Err(err).Msg("Failed to drop tables")
	}
	log.Info().Msg("Successfully dropped all tables")

	log.Info().Msg("Recreating database schema...")
	if err := state.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to recreate database schema")
	}

	log.Info().Msg("Database reset complete!")
}
