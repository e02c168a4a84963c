package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/the-standard/smart-vault/internal/config"
	"github.com/the-standard/smart-vault/internal/logger"
	"github.com/the-standard/smart-vault/internal/types"
	"github.com/the-standard/smart-vault/internal/vault"
)

const defaultSweepPage = 20

// Directory is the read side of the vault directory.
type Directory interface {
	Vault(id uint64) (*vault.Ledger, error)
	Vaults(ctx context.Context, owner common.Address) ([]types.VaultData, error)
	AllVaultIDs() []uint64
}

type Collateral interface {
	AcceptedTokens() []types.CollateralAsset
}

type Parameters interface {
	View() config.ParametersView
}

// Sweeps lists recent liquidation sweeps. Implemented by keeper.Keeper and state.SweepStore.
type Sweeps interface {
	RecentSweeps(ctx context.Context, limit int) ([]types.SweepResult, error)
}

type Config struct {
	Port       int
	Directory  Directory
	Collateral Collateral
	Parameters Parameters
	Sweeps     Sweeps
	// Ping checks the database; nil when running without persistence.
	Ping func(ctx context.Context) error
}

// WebServer serves the read-only vault API.
type WebServer struct {
	router *mux.Router
	port   int
	cfg    Config
	logger zerolog.Logger
}

// NewWebServer creates a new web server instance
func NewWebServer(cfg Config) *WebServer {
	if cfg.Port == 0 {
		cfg.Port = config.DefaultWebPort
	}

	server := &WebServer{
		router: mux.NewRouter(),
		port:   cfg.Port,
		cfg:    cfg,
		logger: logger.GetForComponent("web_server"),
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/vaults/{id:[0-9]+}", ws.handleGetVault).Methods("GET")
	api.HandleFunc("/vaults/{id:[0-9]+}/yield", ws.handleGetVaultYield).Methods("GET")
	api.HandleFunc("/owners/{address}/vaults", ws.handleGetOwnerVaults).Methods("GET")
	api.HandleFunc("/collateral", ws.handleGetCollateral).Methods("GET")
	api.HandleFunc("/parameters", ws.handleGetParameters).Methods("GET")
	api.HandleFunc("/sweeps", ws.handleGetSweeps).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler exposes the routes, e.g. for httptest.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	ws.logger.Info().Int("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(ws.port),
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			ws.logger.Error().Err(err).Msg("Web server shutdown failed")
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleHealth reports process stats, database reachability and the last sweep.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false
	dbStatus := "disabled"
	if ws.cfg.Ping != nil {
		dbStatus = "ok"
		if err := ws.cfg.Ping(r.Context()); err != nil {
			dbStatus = "unreachable"
			hasErrors = true
		}
	}

	var lastSweep *types.SweepResult
	if ws.cfg.Sweeps != nil {
		if recent, err := ws.cfg.Sweeps.RecentSweeps(r.Context(), 1); err == nil && len(recent) > 0 {
			lastSweep = &recent[0]
			hasErrors = hasErrors || recent[0].Error != ""
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if hasErrors {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
		},
		"vaults": map[string]interface{}{
			"open":       len(ws.cfg.Directory.AllVaultIDs()),
			"database":   dbStatus,
			"last_sweep": lastSweep,
		},
	}
	ws.writeJSONResponse(w, statusCode, response)
}

func (ws *WebServer) handleGetVault(w http.ResponseWriter, r *http.Request) {
	ledger, ok := ws.lookupVault(w, r)
	if !ok {
		return
	}
	status, err := ledger.Status(r.Context())
	if err != nil {
		ws.writeDomainError(w, err, "Failed to value vault")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, status)
}

func (ws *WebServer) handleGetVaultYield(w http.ResponseWriter, r *http.Request) {
	ledger, ok := ws.lookupVault(w, r)
	if !ok {
		return
	}
	positions, err := ledger.YieldAssets(r.Context())
	if err != nil {
		ws.writeDomainError(w, err, "Failed to read yield positions")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"id":        ledger.ID(),
		"positions": positions,
	})
}

func (ws *WebServer) handleGetOwnerVaults(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid owner address")
		return
	}
	vaults, err := ws.cfg.Directory.Vaults(r.Context(), common.HexToAddress(raw))
	if err != nil {
		ws.writeDomainError(w, err, "Failed to list vaults")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"vaults": vaults,
		"count":  len(vaults),
	})
}

func (ws *WebServer) handleGetCollateral(w http.ResponseWriter, r *http.Request) {
	assets := ws.cfg.Collateral.AcceptedTokens()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"assets": assets,
		"count":  len(assets),
	})
}

func (ws *WebServer) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, ws.cfg.Parameters.View())
}

// handleGetSweeps returns the latest sweeps, newest first
func (ws *WebServer) handleGetSweeps(w http.ResponseWriter, r *http.Request) {
	limit := defaultSweepPage
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	sweeps, err := ws.cfg.Sweeps.RecentSweeps(r.Context(), limit)
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get recent sweeps")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve sweeps")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"sweeps": sweeps,
		"count":  len(sweeps),
		"limit":  limit,
	})
}

func (ws *WebServer) lookupVault(w http.ResponseWriter, r *http.Request) (*vault.Ledger, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid vault ID")
		return nil, false
	}
	ledger, err := ws.cfg.Directory.Vault(id)
	if err != nil {
		ws.writeDomainError(w, err, "Vault lookup failed")
		return nil, false
	}
	return ledger, true
}

// statusFor maps a domain error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrVaultNotFound), errors.Is(err, types.ErrTokenNotFound):
		return http.StatusNotFound
	case types.KindOf(err) == types.KindOracle:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (ws *WebServer) writeDomainError(w http.ResponseWriter, err error, message string) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		ws.logger.Error().Err(err).Msg(message)
	}
	ws.writeErrorResponse(w, code, err.Error())
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		ws.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
