package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"lessonchat/internal/api"
	"lessonchat/internal/catalog"
	"lessonchat/internal/config"
	"lessonchat/internal/database"
	"lessonchat/internal/hub"
	"lessonchat/internal/logger"
	"lessonchat/internal/metrics"
	"lessonchat/internal/ratelimit"
	"lessonchat/internal/relay"
	"lessonchat/internal/session"
	"lessonchat/internal/websocket"
	pkgdatabase "lessonchat/pkg/database"
)

// limiterIdle is how long an idle per-IP bucket is kept
const limiterIdle = 30 * time.Minute

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config     *config.Config
	dbManager  *database.Manager
	sessions   *session.Manager
	catalog    *catalog.Manager
	registry   *websocket.Registry
	lanes      *hub.Hub
	relay      *relay.Service
	metrics    *metrics.Metrics
	limiter    *ratelimit.Limiter
	wsHandler  *websocket.Handler
	apiServer  *api.Server
	httpServer *http.Server
	closeLog   func() error

	listener    net.Listener
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Database → Session/Catalog → Registry → Hub → Relay → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	// Validate configuration before component initialization
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	closeLog := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Sink)

	// STEP 1: Initialize database manager (foundation layer)
	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.DatabasePath = cfg.Database.Path
	dbConfig.MaxConnections = cfg.Database.MaxConnections
	dbConfig.BusyRetryDelay = cfg.Database.BusyRetryDelay
	dbConfig.WriteTimeout = cfg.Database.WriteTimeout

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			_ = closeLog()
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	// STEP 1.5: Apply database migrations to ensure schema is up to date
	if err := dbManager.Migrate(); err != nil {
		_ = dbManager.Close()
		_ = closeLog()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	logger.Info("database_ready", "path", cfg.Database.Path)

	// STEP 2: Session store and catalog share the database
	sessions := session.NewManager(dbManager)
	catalogManager := catalog.NewManager(dbManager)

	// STEP 3: Metrics first so the registry can report broadcast results
	m := metrics.New()
	registry := websocket.NewRegistry(m.ObserveBroadcast)

	// STEP 4: Per-session lanes and the relay on top of them
	lanes := hub.NewHub(hub.Config{
		QueueSize:   cfg.Hub.QueueSize,
		IdleTimeout: cfg.Hub.IdleTimeout,
	})
	relayService := relay.NewService(sessions, registry, lanes, m)

	// STEP 5: Transport and REST surface
	wsHandler := websocket.NewHandler(relayService, websocket.Config{
		PingInterval:   cfg.WebSocket.PingInterval,
		ReadTimeout:    cfg.WebSocket.ReadTimeout,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		SendBufferSize: cfg.WebSocket.BufferSize,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		EventRate:      cfg.WebSocket.EventRate,
		EventBurst:     cfg.WebSocket.EventBurst,
	})

	if err := registerGauges(m, registry, lanes, wsHandler); err != nil {
		_ = dbManager.Close()
		_ = closeLog()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	var limiter *ratelimit.Limiter
	if rps := cfg.HTTP.RateLimitRPS(); rps > 0 {
		limiter = ratelimit.New(rps, cfg.HTTP.RateLimitRequests)
	}

	apiServer := api.NewServer(api.Dependencies{
		Sessions:       sessions,
		Mutator:        relayService,
		Catalog:        catalogManager,
		Rooms:          registry,
		Health:         dbManager,
		Metrics:        m,
		Limiter:        limiter,
		WebSocket:      wsHandler,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})

	// STEP 6: Setup HTTP server; the API router also mounts /ws and /metrics
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Address(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &Application{
		config:      cfg,
		dbManager:   dbManager,
		sessions:    sessions,
		catalog:     catalogManager,
		registry:    registry,
		lanes:       lanes,
		relay:       relayService,
		metrics:     m,
		limiter:     limiter,
		wsHandler:   wsHandler,
		apiServer:   apiServer,
		httpServer:  httpServer,
		closeLog:    closeLog,
		stopCleanup: make(chan struct{}),
	}, nil
}

func registerGauges(m *metrics.Metrics, registry *websocket.Registry, lanes *hub.Hub, sockets *websocket.Handler) error {
	gauges := []struct {
		name, help string
		fn         func() float64
	}{
		{"websocket_connections", "Endpoints currently joined to a session room.", func() float64 { return float64(registry.Stats().Connections) }},
		{"websocket_sockets", "Upgraded sockets, joined or not.", func() float64 { return float64(sockets.Active()) }},
		{"session_rooms", "Session rooms with at least one endpoint.", func() float64 { return float64(registry.Stats().Rooms) }},
		{"hub_lanes", "Live per-session lanes.", func() float64 { return float64(lanes.Stats().Lanes) }},
		{"hub_queued_tasks", "Tasks waiting on session lanes.", func() float64 { return float64(lanes.Stats().Queued) }},
	}
	for _, g := range gauges {
		if err := m.RegisterGauge(g.name, g.help, g.fn); err != nil {
			return err
		}
	}
	return nil
}

// Start begins application execution
// Startup coordination ensures all components ready before serving
// Hub starts first to handle events, then HTTP server accepts connections
func (app *Application) Start(ctx context.Context) error {
	logger.Info("application_starting", "addr", app.httpServer.Addr)

	// STEP 1: Optional demo catalog
	if app.config.SeedDemoData {
		seeded, err := app.catalog.Seed(ctx)
		if err != nil {
			return fmt.Errorf("failed to seed demo data: %w", err)
		}
		if seeded {
			logger.Info("demo_data_seeded")
		}
	}

	// STEP 2: Start session lanes (background event processing). Stop owns
	// their shutdown so in-flight events drain after the listener closes.
	if err := app.lanes.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to start session hub: %w", err)
	}

	// STEP 3: Bind before returning so callers can dial Addr immediately
	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.lanes.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = ln

	if app.limiter != nil {
		go app.limiter.RunCleanup(time.Minute, limiterIdle, app.stopCleanup)
	}

	go func() {
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_failed", "error", err)
		}
	}()

	logger.Info("application_started", "addr", ln.Addr().String())
	return nil
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → WebSocket connections → Hub → Database → log sink
func (app *Application) Stop(ctx context.Context) error {
	var stopErr error
	app.stopOnce.Do(func() {
		logger.Info("application_stopping")

		// STEP 1: Stop accepting new connections
		if err := app.httpServer.Shutdown(ctx); err != nil {
			logger.Error("http_shutdown_failed", "error", err)
			stopErr = err
		}

		// STEP 2: Hijacked sockets are not covered by Shutdown. Every read pump
		// must exit while the lanes still run so user-left is delivered.
		if err := app.wsHandler.Shutdown(ctx); err != nil {
			logger.Error("websocket_shutdown_failed", "error", err, "remaining", app.wsHandler.Active())
			if stopErr == nil {
				stopErr = err
			}
		}
		app.registry.CloseAll()
		close(app.stopCleanup)

		// STEP 3: Drain session lanes
		if err := app.lanes.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
			logger.Error("hub_shutdown_failed", "error", err)
		}

		// STEP 4: Close database connections
		if err := app.dbManager.Close(); err != nil {
			logger.Error("database_shutdown_failed", "error", err)
			if stopErr == nil {
				stopErr = err
			}
		}

		logger.Info("application_stopped")

		// STEP 5: Release the log file, if any
		if err := app.closeLog(); err != nil && stopErr == nil {
			stopErr = err
		}
	})
	return stopErr
}

// GetAddr returns the bound listener address, or the configured one before Start
func (app *Application) GetAddr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}
