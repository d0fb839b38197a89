package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shardkv/shardkv/internal/server"
	"github.com/shardkv/shardkv/pkg/config"
	"github.com/shardkv/shardkv/pkg/metrics"
)

func main() {
	cfg := config.LoadServerConfig()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(config.LoggingConfig{Level: cfg.LogLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting development server",
		zap.String("address", cfg.Address()),
		zap.Int("max_conns", cfg.MaxConns),
		zap.Bool("auth", cfg.Password != ""))

	opts := []server.Option{server.WithLogger(logger)}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
		opts = append(opts, server.WithMetrics(metrics.New(reg)))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("Serving metrics", zap.String("address", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	srv := server.New(cfg, opts...)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Shutting down server", zap.String("signal", sig.String()))

	if err := srv.Stop(); err != nil {
		logger.Error("Error stopping server", zap.Error(err))
	}
	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Error("Error stopping metrics server", zap.Error(err))
		}
	}
}
