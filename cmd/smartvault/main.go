package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/the-standard/smart-vault/internal/config"
	"github.com/the-standard/smart-vault/internal/keeper"
	"github.com/the-standard/smart-vault/internal/logger"
	"github.com/the-standard/smart-vault/internal/service"
	"github.com/the-standard/smart-vault/internal/state"
	"github.com/the-standard/smart-vault/internal/web"
)

// main is the entry point for the smart vault service.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	var extra []io.Writer
	if cfg.LogFile != "" {
		fileWriter, err := logger.FileWriter(cfg.LogFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.LogFile).Msg("Failed to open log file")
		}
		extra = append(extra, fileWriter)
	}
	logger.Initialize(cfg.LogLevel, extra...)
	log.Info().Msg("Smart vault engine starting...")

	bootstrap, err := config.LoadBootstrap(cfg.BootstrapFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load bootstrap file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. Persistence (optional) ---
	var (
		stores    service.Stores
		persisted service.Persisted
		keeperCfg = keeper.Config{Liquidator: bootstrap.Accounts.Liquidator}
		webCfg    = web.Config{Port: cfg.WebPort}
	)
	if cfg.DB.Enabled() {
		dbCfg := state.DBConfig{
			Host: cfg.DB.Host, Port: cfg.DB.Port,
			User: cfg.DB.User, Password: cfg.DB.Password,
			DBName: cfg.DB.Name, SSLMode: cfg.DB.SSLMode,
		}
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}

		if persisted.Assets, err = (state.AssetStore{}).LoadCollateralAssets(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to load collateral list")
		}
		if persisted.Records, err = (state.VaultStore{}).LoadVaultRecords(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to load vault records")
		}
		stores = service.Stores{Assets: state.AssetStore{}, Vaults: state.VaultStore{}}
		keeperCfg.Counter = state.CycleCounter{}
		keeperCfg.Recorder = state.SweepStore{}
		webCfg.Sweeps = state.SweepStore{}
		webCfg.Ping = state.TestDBConnection
	}

	// --- 3. Engine ---
	svc, err := service.Build(ctx, bootstrap, stores, persisted)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to assemble engine")
	}

	keeperCfg.Directory = svc.Directory
	sweeper, err := keeper.New(keeperCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create keeper")
	}

	// --- 4. Web API ---
	webCfg.Directory = svc.Directory
	webCfg.Collateral = svc.Registry
	webCfg.Parameters = svc.Parameters
	if webCfg.Sweeps == nil {
		webCfg.Sweeps = sweeper
	}
	webServer := web.NewWebServer(webCfg)
	go func() {
		if err := webServer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("Web server failed")
			stop()
		}
	}()

	// --- 5. Liquidation loop ---
	sweeper.RunLoop(ctx, cfg.SweepInterval)
	log.Info().Msg("Smart vault engine stopped")
}
