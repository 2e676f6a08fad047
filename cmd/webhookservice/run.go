package webhookservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	service "sales-dashboard/internal/app/webhookservice"
	"sales-dashboard/internal/shared/config"
	"sales-dashboard/internal/shared/logger"
	"sales-dashboard/internal/shared/metrics"
)

// Run wires the webhook ingestion service and blocks until ctx is cancelled.
// It returns the first terminal error (server or startup failure).
func Run(ctx context.Context, configPath string, port, maxConcurrent int) error {
	// set up a new logger for webhook service with a static request ID for startup logs
	logger := logger.NewLogger("webhook-service")
	ctx = logger.WithRequestID(ctx, "startup-001")

	// load a config from file
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err)
		return err
	}

	// pick where accepted orders go
	sink, closeSink, err := buildSink(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "sink_setup_failed", "Failed to set up order sink", err)
		return err
	}
	defer closeSink()

	reg := metrics.NewRegistry()
	m := metrics.NewWebhook(reg)

	recent := service.NewRecentDeliveries(service.DefaultRecentLimit)
	svc := service.New(sink, recent, logger, m)
	h := service.NewWebhookHTTPHandler(svc, recent, service.HandlerConfig{
		Secret:       cfg.Webhook.Secret,
		Providers:    cfg.Webhook.Providers,
		MaxBodyBytes: cfg.Webhook.MaxBodyBytes,
	}, logger, m)

	if !h.AuthEnabled() {
		logger.Warn(ctx, "auth_disabled", "No webhook secret configured; requests are accepted without authentication", nil)
	}

	router := h.Routes()
	router.Method(http.MethodGet, "/metrics", metrics.Handler(reg))

	// concurrency limiter (global), blocks when capacity is full
	handler := withConcurrencyLimit(maxConcurrent, router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Webhook Service started on port %d", port),
		map[string]any{
			"port":           port,
			"max_concurrent": maxConcurrent,
			"sink":           cfg.Webhook.Sink,
			"providers":      cfg.Webhook.Providers,
		},
	)

	// serve + graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		// drain keep-alives and in-flight requests
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		logger.Info(logger.WithRequestID(context.Background(), "shutdown-001"), "graceful_shutdown", "Webhook service stopped", nil)
		return nil
	case err := <-errCh:
		return err
	}
}
