package statussubscriber

import (
	"context"
	"fmt"
	"os"
	"sync"

	service "sales-dashboard/internal/app/statussubscriber"
	"sales-dashboard/internal/shared/config"
	"sales-dashboard/internal/shared/logger"
	"sales-dashboard/internal/shared/rabbitmq"
)

func Run(ctx context.Context, configPath string) error {
	// set up a new logger for status subscriber with a static request ID for startup logs
	logger := logger.NewLogger("status-subscriber")
	ctx = logger.WithRequestID(ctx, "startup-001")

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err)
		return err
	}
	if err := cfg.RequireRabbitMQ(); err != nil {
		logger.Error(ctx, "config_invalid", "RabbitMQ settings are required", err)
		return err
	}

	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err)
		return err
	}
	defer rmq.Close()

	printer := service.NewPrinter(logger, os.Stdout)
	logger.Info(ctx, "service_started", "Status subscriber started", nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rabbitmq.ConsumeForever(ctx, rmq, logger, rabbitmq.StatusNotifyQueue, "status-subscriber", 10, printer.Handle)
	}()

	// create a channel to signal when the consumer goroutine is done
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
	case <-done:
		// consumer exited unexpectedly -> return error to let main exit non-zero
		return fmt.Errorf("status consumer exited unexpectedly")
	}

	logger.Info(logger.WithRequestID(context.Background(), "shutdown-001"), "graceful_shutdown", "Shutting down status subscriber", nil)

	wg.Wait()
	return nil
}
