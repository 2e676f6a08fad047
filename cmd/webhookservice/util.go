package webhookservice

import (
	"context"
	"fmt"
	"net/http"

	service "sales-dashboard/internal/app/webhookservice"
	"sales-dashboard/internal/ports"
	"sales-dashboard/internal/shared/config"
	"sales-dashboard/internal/shared/kafka"
	"sales-dashboard/internal/shared/logger"
	pg "sales-dashboard/internal/shared/postgres"
	"sales-dashboard/internal/shared/rabbitmq"
)

// buildSink connects the storage selected by webhook.sink. The returned func
// releases its connections.
func buildSink(ctx context.Context, cfg *config.Config, logger *logger.Logger) (ports.OrderSink, func(), error) {
	switch cfg.Webhook.Sink {
	case config.SinkRabbitMQ:
		if err := cfg.RequireRabbitMQ(); err != nil {
			return nil, nil, err
		}
		rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return service.NewPublisherSink(&rabbitmq.MQPublisher{Client: rmq}), rmq.Close, nil

	case config.SinkPostgres:
		if err := cfg.RequireDatabase(); err != nil {
			return nil, nil, err
		}
		pool, err := pg.NewPool(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return service.NewRepositorySink(pg.NewUnitOfWork(pool), pg.NewOrdersFeedRepo()), pool.Close, nil

	case config.SinkKafka:
		if err := cfg.RequireKafka(); err != nil {
			return nil, nil, err
		}
		producer := kafka.NewProducer(cfg.Kafka)
		return service.NewKafkaSink(producer), func() {
			if err := producer.Close(); err != nil {
				logger.Error(ctx, "kafka_close_failed", "Failed to flush Kafka writer", err)
			}
		}, nil

	case config.SinkLog:
		return service.NewLogSink(logger), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown webhook sink %q", cfg.Webhook.Sink)
	}
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// It blocks until capacity is available, which provides natural backpressure.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sem <- struct{}{}        // acquire
		defer func() { <-sem }() // release
		next.ServeHTTP(w, r)
	})
}
