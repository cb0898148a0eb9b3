package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shahryar908/agenticrag/internal/app"
	"github.com/shahryar908/agenticrag/internal/circuitbreaker"
	"github.com/shahryar908/agenticrag/internal/config"
	"github.com/shahryar908/agenticrag/internal/health"
	"github.com/shahryar908/agenticrag/internal/httpapi"
	"github.com/shahryar908/agenticrag/internal/mcpserver"
	"github.com/shahryar908/agenticrag/internal/tracing"
)

func main() {
	_ = godotenv.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	boot, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := app.NewLogger(boot.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfgMgr, err := config.NewManager(config.Path(), logger)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	cfg := cfgMgr.Current()

	shutdownTracing, err := tracing.Initialize(cfg.Tracing, cfg.Service.Version, logger)
	if err != nil {
		logger.Warn("Tracing unavailable", zap.Error(err))
	}

	stopBreakerMetrics := make(chan struct{})
	circuitbreaker.StartMetricsCollection(stopBreakerMetrics)

	svc, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build service", zap.Error(err))
	}

	// Gate policy, default top_k, rate limits and prices follow the config file.
	cfgMgr.OnChange(svc.ApplyConfig)
	cfgMgr.Watch()

	// ------------------------------------------------------------------
	// Admin server: metrics and dependency health, separate from the API port.
	// ------------------------------------------------------------------
	adminMux := mux.NewRouter()
	adminMux.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	health.NewHTTPHandler(svc.Health, logger).RegisterRoutes(adminMux)
	_ = svc.Health.Start(ctx)

	adminServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Admin.Port),
		Handler:      adminMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("Admin HTTP server listening", zap.Int("port", cfg.Admin.Port))
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Admin HTTP server failed", zap.Error(err))
		}
	}()

	opts := httpapi.Options{
		Engine:        svc.Engine,
		Knowledge:     svc.Base,
		LLMModel:      svc.LLM.Model(),
		Version:       cfg.Service.Version,
		MaxUploadSize: cfg.API.MaxUploadSize,
	}
	if cfg.MCP.Enabled {
		opts.MCP = mcpserver.New(svc.Engine, svc.Base, cfg.Service.Version, logger).HTTPHandler(cfg.MCP.Path)
		opts.MCPPath = cfg.MCP.Path
	}
	apiServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.API.Port),
		Handler:      httpapi.NewServer(opts, logger).Handler(),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Info("API server listening", zap.Int("port", cfg.API.Port))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("API server failed", zap.Error(err))
		}
	}()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down agentic RAG service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown failed", zap.Error(err))
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Admin server shutdown failed", zap.Error(err))
	}
	_ = svc.Health.Stop()
	close(stopBreakerMetrics)
	if err := svc.Close(); err != nil {
		logger.Error("Failed to close service", zap.Error(err))
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Tracing shutdown failed", zap.Error(err))
		}
	}
}
