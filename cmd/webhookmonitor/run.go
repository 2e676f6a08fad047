package webhookmonitor

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sales-dashboard/internal/app/monitorservice"
	"sales-dashboard/internal/ports"
	"sales-dashboard/internal/shared/config"
	"sales-dashboard/internal/shared/logger"
	"sales-dashboard/internal/shared/metrics"
	pg "sales-dashboard/internal/shared/postgres"
	"sales-dashboard/internal/shared/rabbitmq"
)

// Overrides carry command-line values that win over the config file.
// Zero Interval and negative MaxRetries keep the configured values.
type Overrides struct {
	Interval   time.Duration
	MaxRetries int
}

// Run starts the health monitor and its status API, and blocks until ctx is cancelled.
func Run(ctx context.Context, configPath string, port int, over Overrides) error {
	logger := logger.NewLogger("webhook-monitor")
	ctx = logger.WithRequestID(ctx, "startup-001")

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err)
		return err
	}

	opts := monitorservice.Options{
		Interval:     cfg.Monitor.Interval,
		MaxRetries:   cfg.Monitor.MaxRetries,
		BaseDelay:    cfg.Monitor.BaseDelay,
		MaxDelay:     cfg.Monitor.MaxDelay,
		ErrorHistory: cfg.Monitor.ErrorHistory,
	}
	if over.Interval > 0 {
		opts.Interval = over.Interval
	}
	if over.MaxRetries >= 0 {
		opts.MaxRetries = over.MaxRetries
	}

	audit, closeAudit := buildAudit(ctx, cfg, logger)
	defer closeAudit()

	reg := metrics.NewRegistry()
	checker := monitorservice.NewHTTPChecker(cfg.Monitor.HealthURL, cfg.Monitor.Secret, cfg.Monitor.Timeout)
	mon := monitorservice.New(checker, audit, logger, metrics.NewMonitor(reg), opts)

	router := chi.NewRouter()
	monitorservice.NewHandler(logger, mon).Register(router)
	router.Method(http.MethodGet, "/metrics", metrics.Handler(reg))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Monitor.Timeout + 5*time.Second, // refresh waits for a full check
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	if err := mon.Start(ctx); err != nil {
		return err
	}

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Webhook Monitor started on port %d", port),
		map[string]any{
			"port":        port,
			"health_url":  cfg.Monitor.HealthURL,
			"interval":    opts.Interval.String(),
			"max_retries": opts.MaxRetries,
		},
	)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shCtx = logger.WithRequestID(shCtx, "shutdown-001")

	_ = srv.Shutdown(shCtx)
	if err := mon.Shutdown(shCtx); err != nil {
		logger.Error(shCtx, "monitor_shutdown_failed", "Monitor did not stop in time", err)
	}
	logger.Info(shCtx, "graceful_shutdown", "Webhook monitor stopped", nil)
	return runErr
}

// buildAudit attaches every audit trail the config can reach. Unreachable
// backends are skipped so the monitor keeps running without them.
func buildAudit(ctx context.Context, cfg *config.Config, logger *logger.Logger) (ports.MonitorAudit, func()) {
	var (
		audits  monitorservice.MultiAudit
		closers []func()
	)

	if cfg.RequireDatabase() == nil {
		pool, err := pg.NewPool(ctx, cfg, logger)
		if err == nil {
			err = pg.EnsureSchema(ctx, pool)
			if err != nil {
				pool.Close()
			}
		}
		if err != nil {
			logger.Error(ctx, "audit_db_unavailable", "Monitor log table disabled", err)
		} else {
			audits = append(audits, monitorservice.NewRepositoryAudit(pg.NewUnitOfWork(pool), pg.NewMonitorLogRepo()))
			closers = append(closers, pool.Close)
		}
	}

	if cfg.RequireRabbitMQ() == nil {
		rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, logger)
		if err != nil {
			logger.Error(ctx, "audit_rabbitmq_unavailable", "Status notifications disabled", err)
		} else {
			audits = append(audits, monitorservice.NewPublisherAudit(&rabbitmq.MQPublisher{Client: rmq}))
			closers = append(closers, rmq.Close)
		}
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	if len(audits) == 0 {
		return nil, closeAll
	}
	return audits, closeAll
}
