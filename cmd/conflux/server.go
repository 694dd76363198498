package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/conflux/api/handlers"
	"github.com/BaSui01/conflux/bus"
	"github.com/BaSui01/conflux/cache"
	"github.com/BaSui01/conflux/config"
	"github.com/BaSui01/conflux/engine"
	"github.com/BaSui01/conflux/internal/metrics"
	"github.com/BaSui01/conflux/internal/server"
	"github.com/BaSui01/conflux/internal/telemetry"
	"github.com/BaSui01/conflux/realtime"
	"github.com/BaSui01/conflux/store"
)

// Server wires the configuration engine to its HTTP and WebSocket
// surfaces.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	engine           *engine.Engine
	metricsCollector *metrics.Collector
	otelProviders    *telemetry.Providers

	httpManager    *server.Manager
	metricsManager *server.Manager

	rateLimiterCancel context.CancelFunc
}

// NewServer builds the engine and its backends from configuration.
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) (*Server, error) {
	collector := metrics.NewCollector("conflux", prometheus.DefaultRegisterer, logger)

	storeCfg := cfg.Database.StoreConfig()
	storeCfg.Pool.OnStats = func(stats sql.DBStats) {
		collector.RecordDBConnections(cfg.Database.Driver, stats.OpenConnections, stats.Idle)
	}

	st, err := store.Open(storeCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	ca, err := cache.Open(cfg.Cache.CacheConfig(), logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	eng := engine.New(
		st,
		ca,
		bus.NewChangeBus(cfg.Bus.BusConfig(), logger),
		engine.Config{CacheTTL: cfg.Engine.CacheTTL, OpTimeout: cfg.Engine.OpTimeout},
		logger,
		collector,
	)

	return &Server{
		cfg:              cfg,
		logger:           logger,
		engine:           eng,
		metricsCollector: collector,
		otelProviders:    otelProviders,
	}, nil
}

// Start brings up the HTTP and metrics servers.
func (s *Server) Start() error {
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.String("addr", s.cfg.Server.Addr),
		zap.String("metrics_addr", s.cfg.Server.MetricsAddr),
		zap.String("store", s.cfg.Database.Type),
		zap.String("cache", s.cfg.Cache.Backend),
	)
	return nil
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(s.logger)
	healthHandler.RegisterCheck(handlers.NewPingCheck("engine", s.engine.HealthCheck))
	healthHandler.Register(mux)
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteJSON(w, http.StatusOK, map[string]string{
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	configHandler := handlers.NewConfigHandler(s.engine, s.logger)
	configHandler.Register(mux)

	wsHandler := realtime.NewHandler(s.engine, s.logger)
	mux.Handle("/ws", wsHandler)

	skipAuthPaths := []string{"/health", "/healthz", "/readyz", "/version", "/metrics"}
	rateLimiterCtx, cancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = cancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		OTelTracing(),
		MetricsMiddleware(s.metricsCollector),
	}
	if s.cfg.RateLimit.Enabled {
		middlewares = append(middlewares,
			RateLimiter(rateLimiterCtx, s.cfg.RateLimit.RPS, s.cfg.RateLimit.Burst, s.logger))
	}
	if s.cfg.Auth.Enabled {
		middlewares = append(middlewares,
			APIKeyAuth(s.cfg.Auth.APIKeys, skipAuthPaths, s.logger))
	}

	s.httpManager = server.NewManager(Chain(mux, middlewares...), s.cfg.Server.ManagerConfig(), s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.String("addr", s.cfg.Server.Addr))
	return nil
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	cfg := server.DefaultConfig()
	cfg.Addr = s.cfg.Server.MetricsAddr

	s.metricsManager = server.NewManager(mux, cfg, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.String("addr", s.cfg.Server.MetricsAddr))
	return nil
}

// WaitForShutdown blocks until a shutdown signal arrives, then shuts the
// service down gracefully.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown closes the servers and the engine in dependency order.
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	if err := s.engine.Close(); err != nil {
		s.logger.Error("Engine shutdown error", zap.Error(err))
	}

	if s.otelProviders != nil {
		if err := s.otelProviders.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
