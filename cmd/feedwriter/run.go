package feedwriter

import (
	"context"
	"fmt"
	"sync"

	service "sales-dashboard/internal/app/feedwriter"
	"sales-dashboard/internal/shared/config"
	"sales-dashboard/internal/shared/logger"
	pg "sales-dashboard/internal/shared/postgres"
	"sales-dashboard/internal/shared/rabbitmq"
)

// Run consumes forwarded orders into the live feed table until ctx is cancelled.
func Run(ctx context.Context, configPath string, prefetch int) error {
	logger := logger.NewLogger("feed-writer")
	ctx = logger.WithRequestID(ctx, "startup-001")

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err)
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		logger.Error(ctx, "config_invalid", "Database settings are required", err)
		return err
	}
	if err := cfg.RequireRabbitMQ(); err != nil {
		logger.Error(ctx, "config_invalid", "RabbitMQ settings are required", err)
		return err
	}

	// connect to Postgres and make sure the feed table exists
	pool, err := pg.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to connect to database", err)
		return err
	}
	defer pool.Close()

	if err := pg.EnsureSchema(ctx, pool); err != nil {
		logger.Error(ctx, "db_schema_failed", "Failed to prepare database schema", err)
		return err
	}

	// connect to RabbitMQ
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err)
		return err
	}
	defer rmq.Close()

	svc := service.NewService(pg.NewUnitOfWork(pool), pg.NewOrdersFeedRepo(), logger)
	handler := service.NewDeliveryHandler(svc, logger)

	logger.Info(ctx, "service_started", "Feed writer started", map[string]any{
		"queue":    rabbitmq.OrdersFeedQueue,
		"prefetch": prefetch,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rabbitmq.ConsumeForever(ctx, rmq, logger, rabbitmq.OrdersFeedQueue, "feed-writer", prefetch, handler.Handle)
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
	case <-done:
		return fmt.Errorf("feed consumer exited unexpectedly")
	}

	logger.Info(logger.WithRequestID(context.Background(), "shutdown-001"), "graceful_shutdown", "Shutting down feed writer", nil)

	wg.Wait()
	return nil
}
