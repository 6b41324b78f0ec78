// Package api provides the ScoreShift REST API server.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/ScoreShift/core/cas"
	"github.com/FocuswithJustin/ScoreShift/internal/cache"
	"github.com/FocuswithJustin/ScoreShift/internal/catalog"
	"github.com/FocuswithJustin/ScoreShift/internal/history"
	"github.com/FocuswithJustin/ScoreShift/internal/logging"
	"github.com/FocuswithJustin/ScoreShift/internal/server"
)

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 5 * time.Second

// Server serves the API. Create it with New and release it with Close.
type Server struct {
	cfg      Config
	ctx      context.Context
	cancel   context.CancelFunc
	catalog  *catalog.Catalog
	store    *cas.Store      // nil when StoreDir is empty
	ledger   *history.Ledger // nil when HistoryDB is empty
	cache    *cache.TTLCache[string, *transposed]
	jobs     *JobStore
	hub      *Hub
	limiter  *RateLimiter // nil when rate limiting is off
	upgrader *websocket.Upgrader
	wg       sync.WaitGroup
	started  time.Time
}

// New validates cfg, opens the sheet library, store and history, and
// starts the WebSocket hub.
func New(cfg Config) (*Server, error) {
	if err := ValidateAuthConfig(cfg.Auth); err != nil {
		return nil, fmt.Errorf("invalid auth config: %w", err)
	}
	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			return nil, fmt.Errorf("TLS enabled but cert or key file not specified")
		}
		if _, err := os.Stat(cfg.TLS.CertFile); err != nil {
			return nil, fmt.Errorf("TLS cert file not found: %w", err)
		}
		if _, err := os.Stat(cfg.TLS.KeyFile); err != nil {
			return nil, fmt.Errorf("TLS key file not found: %w", err)
		}
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultConfig().MaxUploadBytes
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}

	for _, dir := range []string{cfg.SheetsDir, cfg.JobsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	cat, err := catalog.Open(cfg.SheetsDir)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		catalog:  cat,
		cache:    cache.New[string, *transposed](cfg.CacheTTL, cfg.CacheEntries),
		jobs:     NewJobStore(),
		hub:      NewHub(),
		upgrader: newUpgrader(cfg.AllowedOrigins),
		started:  time.Now(),
	}

	if cfg.StoreDir != "" {
		if s.store, err = cas.NewStore(cfg.StoreDir); err != nil {
			cancel()
			return nil, err
		}
	}
	if cfg.HistoryDB != "" {
		if s.ledger, err = history.Open(ctx, cfg.HistoryDB); err != nil {
			cancel()
			return nil, err
		}
	}
	if cfg.RateLimitRequests > 0 {
		s.limiter = NewRateLimiter(RateLimiterConfig{
			RequestsPerMinute: cfg.RateLimitRequests,
			BurstSize:         cfg.RateLimitBurst,
		})
	}

	go s.hub.Run()
	return s, nil
}

// routes configures all HTTP routes.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/keys", s.handleKeys)
	mux.HandleFunc("/transpose", s.handleTranspose)
	mux.HandleFunc("/sheets", s.handleSheets)
	mux.HandleFunc("/sheets/{name}", s.handleSheetByName)
	mux.HandleFunc("/scores/{digest}", s.handleScore)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/jobs", s.handleJobs)
	mux.HandleFunc("/jobs/{id}", s.handleJobByID)
	mux.HandleFunc("/ws", s.handleWebSocket)

	return mux
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = server.SecurityHeadersMiddleware(server.APICSPConfig(), s.routes())

	handler = AuthMiddleware(s.cfg.Auth, handler)
	if s.limiter != nil {
		handler = s.limiter.Middleware(handler)
	}
	// CORS sits outside auth so preflight requests need no API key.
	handler = server.CORSMiddleware(server.CORSConfig{AllowedOrigins: s.cfg.AllowedOrigins}, handler)
	handler = server.TimingMiddleware(handler)
	return logging.CombinedMiddleware(handler)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.logStartup()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		if s.cfg.TLS.Enabled {
			errc <- srv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			errc <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logging.Info("shutting down", "timeout", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logStartup() {
	protocol, wsProtocol := "http", "ws"
	if s.cfg.TLS.Enabled {
		protocol, wsProtocol = "https", "wss"
		logging.Info("TLS enabled", "cert_file", s.cfg.TLS.CertFile)
	} else {
		logging.Warn("TLS disabled - using plain HTTP",
			"recommendation", "consider using TLS or reverse proxy for production")
	}
	logging.ServerStartup("rest_api", protocol, s.cfg.Port,
		"websocket_protocol", wsProtocol,
		"sheets_dir", server.AbsPath(s.cfg.SheetsDir),
		"store_dir", s.cfg.StoreDir,
		"history_db", s.cfg.HistoryDB)

	logging.SecurityEvent("authentication_configured", "api", "enabled", s.cfg.Auth.Enabled)
	if len(s.cfg.AllowedOrigins) > 0 {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "restricted",
			"allowed_origins_count", len(s.cfg.AllowedOrigins))
	} else {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "permissive",
			"note", "allowing all origins (*) - consider restricting for production")
	}
	if s.limiter != nil {
		logging.Info("rate limiting enabled",
			"requests_per_minute", s.cfg.RateLimitRequests,
			"burst_size", s.limiter.config.BurstSize)
	}
}

// Close cancels running jobs, waits for them, and releases resources.
func (s *Server) Close() error {
	s.cancel()
	s.jobs.CancelAll()
	s.wg.Wait()
	s.hub.Stop()
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.ledger != nil {
		return s.ledger.Close()
	}
	return nil
}

// Start runs a server with cfg until ctx is cancelled.
func Start(ctx context.Context, cfg Config) error {
	s, err := New(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.ListenAndServe(ctx)
}
