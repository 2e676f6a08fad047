package webhookservice

import (
	"context"
	"encoding/json"
	"fmt"

	"sales-dashboard/internal/domain/orders"
	"sales-dashboard/internal/ports"
	"sales-dashboard/internal/shared/contracts"
	"sales-dashboard/internal/shared/logger"
	"sales-dashboard/internal/shared/rabbitmq"
)

// PublisherSink forwards orders to the orders_topic exchange for the feed writer.
type PublisherSink struct {
	publisher ports.Publisher
}

// NewPublisherSink wraps a broker publisher.
func NewPublisherSink(publisher ports.Publisher) *PublisherSink {
	return &PublisherSink{publisher: publisher}
}

// Save publishes the order as a persistent JSON message.
func (sink *PublisherSink) Save(ctx context.Context, order orders.NormalizedOrder) error {
	body, err := json.Marshal(contracts.NewOrderMessage(order))
	if err != nil {
		return fmt.Errorf("marshal order message: %w", err)
	}
	if err := sink.publisher.Publish(rabbitmq.OrdersExchange, rabbitmq.OrderRoutingKey(order.Platform), body, 0); err != nil {
		return fmt.Errorf("publish order %s: %w", order.OrderID, err)
	}
	return nil
}

// RepositorySink writes orders straight into the live feed table.
type RepositorySink struct {
	uow  ports.UnitOfWork
	repo ports.OrderFeedRepository
}

// NewRepositorySink stores orders through repo inside a transaction.
func NewRepositorySink(uow ports.UnitOfWork, repo ports.OrderFeedRepository) *RepositorySink {
	return &RepositorySink{uow: uow, repo: repo}
}

// Save inserts the order.
func (sink *RepositorySink) Save(ctx context.Context, order orders.NormalizedOrder) error {
	return sink.uow.WithinTx(ctx, func(txCtx context.Context) error {
		_, err := sink.repo.InsertOrder(txCtx, order)
		return err
	})
}

// KafkaSink appends orders to a topic keyed by order id.
type KafkaSink struct {
	writer ports.KeyedWriter
}

// NewKafkaSink wraps a keyed writer.
func NewKafkaSink(writer ports.KeyedWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

// Save writes the order and waits for the acknowledgement.
func (sink *KafkaSink) Save(ctx context.Context, order orders.NormalizedOrder) error {
	body, err := json.Marshal(contracts.NewOrderMessage(order))
	if err != nil {
		return fmt.Errorf("marshal order message: %w", err)
	}
	if err := sink.writer.Send(ctx, []byte(order.OrderID), body); err != nil {
		return fmt.Errorf("write order %s: %w", order.OrderID, err)
	}
	return nil
}

// LogSink only logs the order. Used when no storage is configured.
type LogSink struct {
	logger *logger.Logger
}

// NewLogSink logs through l.
func NewLogSink(l *logger.Logger) *LogSink {
	return &LogSink{logger: l}
}

// Save logs the full order message.
func (sink *LogSink) Save(ctx context.Context, order orders.NormalizedOrder) error {
	sink.logger.Info(ctx, "order_logged", "Order accepted without storage", contracts.NewOrderMessage(order))
	return nil
}
