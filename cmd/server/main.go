package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutorstream/narration-gateway/internal/config"
	"github.com/tutorstream/narration-gateway/internal/gateway"
	"github.com/tutorstream/narration-gateway/internal/observability"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("backend_model", cfg.BackendModel).
		Str("backend_voice", cfg.BackendVoice).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Narration Gateway Service starting")

	mux := http.NewServeMux()

	// Client-facing narration WebSocket endpoint
	mux.HandleFunc("/streams/narrate", gateway.HandleNarrationWS(cfg))

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness: the backend check validates that the configured URL is
	// dialable in principle (well-formed, key present) without opening a
	// billable session per probe.
	backendCheck := func(ctx context.Context) (bool, error) {
		if cfg.BackendAPIKey == "" {
			return false, fmt.Errorf("backend API key not configured")
		}
		if _, err := url.Parse(cfg.BackendURL); err != nil {
			return false, fmt.Errorf("backend URL invalid: %w", err)
		}
		return true, nil
	}

	engineCheck := func(ctx context.Context) (bool, error) {
		// Engines are per-client; readiness only requires that playback
		// tunables are sane.
		if cfg.OutputSampleRate <= 0 || cfg.FallbackSampleRate <= 0 {
			return false, fmt.Errorf("invalid sample rate configuration")
		}
		return true, nil
	}

	mux.HandleFunc("/ready", observability.ReadinessHandler(backendCheck, engineCheck))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		endpoint := fmt.Sprintf("ws://localhost:%s/streams/narrate", cfg.Port)
		if cfg.NarrationGatewayURL != "" {
			endpoint = cfg.NarrationGatewayURL + "/streams/narrate"
		}
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", endpoint).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
