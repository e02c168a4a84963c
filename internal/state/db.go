// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"
	"github.com/the-standard/smart-vault/internal/logger"
)

// SchemaVersion is the database layout written by this build.
const SchemaVersion = 2

// ErrNotInitialized is returned by every store call made before InitDB.
var ErrNotInitialized = errors.New("database not initialized")

// DB is a global database connection pool.
var DB *sql.DB

// storeLogger is resolved per call so it picks up the logger configured in main.
func storeLogger() *zerolog.Logger {
	l := logger.GetForComponent("state_store")
	return &l
}

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN renders the lib/pq connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	var err error
	DB, err = sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	if err := DB.Ping(); err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	storeLogger().Info().Str("host", cfg.Host).Str("db", cfg.DBName).Msg("Connected to PostgreSQL")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		storeLogger().Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			storeLogger().Error().Err(err).Msg("Error closing database connection")
		}
		DB = nil
	}
}

// EnsureSchema creates every table of the current layout and then migrates older layouts forward.
func EnsureSchema(ctx context.Context) error {
	if DB == nil {
		return ErrNotInitialized
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS schema_version (
			id INTEGER PRIMARY KEY DEFAULT 1,
			version INTEGER NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		CREATE TABLE IF NOT EXISTS vaults (
			id BIGINT PRIMARY KEY,
			address VARCHAR(42) NOT NULL UNIQUE,
			owner VARCHAR(42) NOT NULL,
			minted NUMERIC(78, 0) NOT NULL DEFAULT 0,
			liquidated BOOLEAN NOT NULL DEFAULT FALSE,
			hypervisors TEXT[] NOT NULL DEFAULT '{}',
			balances JSONB NOT NULL DEFAULT '{}',
			shares JSONB NOT NULL DEFAULT '{}',
			version SMALLINT NOT NULL,
			vault_type VARCHAR(32) NOT NULL,
			schema_version INTEGER NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_vaults_owner ON vaults(owner);

		CREATE TABLE IF NOT EXISTS collateral_assets (
			position INTEGER PRIMARY KEY,
			symbol VARCHAR(32) NOT NULL UNIQUE,
			address VARCHAR(42) NOT NULL,
			decimals SMALLINT NOT NULL,
			feed VARCHAR(42) NOT NULL,
			feed_decimals SMALLINT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sweep_cycles (
			cycle_id UUID PRIMARY KEY,
			cycle_number INTEGER NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			duration_seconds DOUBLE PRECISION NOT NULL,
			checked INTEGER NOT NULL,
			liquidated BIGINT[] NOT NULL DEFAULT '{}',
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_sweep_cycles_started ON sweep_cycles(started_at DESC);

		CREATE TABLE IF NOT EXISTS cycle_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_cycle INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		INSERT INTO cycle_counter (id, current_cycle)
		VALUES (1, 0)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	if err := MigrateSchema(ctx); err != nil {
		return err
	}
	storeLogger().Info().Int("schemaVersion", SchemaVersion).Msg("Database schema ensured")
	return nil
}

// MigrateSchema moves the database from whatever layout it records to SchemaVersion in one transaction.
// Version 1 databases predate LP share tracking.
func MigrateSchema(ctx context.Context) error {
	if DB == nil {
		return ErrNotInitialized
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var current int
	err = tx.QueryRowContext(ctx, `SELECT version FROM schema_version WHERE id = 1`).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		current, err = 0, nil
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if current > SchemaVersion {
		err = fmt.Errorf("database schema %d is newer than supported %d", current, SchemaVersion)
		return err
	}

	if current < 2 {
		if _, err = tx.ExecContext(ctx, `ALTER TABLE vaults ADD COLUMN IF NOT EXISTS shares JSONB NOT NULL DEFAULT '{}'`); err != nil {
			return fmt.Errorf("failed to add vaults.shares: %w", err)
		}
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO schema_version (id, version, updated_at) VALUES (1, $1, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET version = EXCLUDED.version, updated_at = EXCLUDED.updated_at`, SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	if current != SchemaVersion {
		storeLogger().Info().Int("from", current).Int("to", SchemaVersion).Msg("Database schema migrated")
	}
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection(ctx context.Context) error {
	if DB == nil {
		return ErrNotInitialized
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
