package webhookservice

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sales-dashboard/internal/domain/orders"
	"sales-dashboard/internal/ports"
	"sales-dashboard/internal/shared/logger"
	"sales-dashboard/internal/shared/metrics"
)

// Service implements ports.IngestService.
type Service struct {
	sink    ports.OrderSink
	recent  *RecentDeliveries
	logger  *logger.Logger
	metrics *metrics.Webhook

	now   func() time.Time
	newID func() string
}

// Ensure Service implements the interface at compile time.
var _ ports.IngestService = (*Service)(nil)

// New creates a new ingest service. recent and m may be nil.
func New(sink ports.OrderSink, recent *RecentDeliveries, logger *logger.Logger, m *metrics.Webhook) *Service {
	return &Service{
		sink:    sink,
		recent:  recent,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Ingest parses, validates and normalizes one delivery and hands it to the sink.
// Nothing reaches the sink unless the event is valid. A failed save is not
// retried here; the caller answers 500 and the platform redelivers.
func (service *Service) Ingest(ctx context.Context, provider string, body []byte) (orders.NormalizedOrder, error) {
	event, err := orders.ParseOrderEvent(body)
	if err != nil {
		return orders.NormalizedOrder{}, err
	}

	order, err := orders.Normalize(event, orders.Receipt{
		DeliveryID: service.newID(),
		Provider:   provider,
		ReceivedAt: service.now(),
	})
	if err != nil {
		return orders.NormalizedOrder{}, err
	}

	err = service.sink.Save(ctx, order)
	service.metrics.ObserveForward(order.Provider, err)
	if err != nil {
		service.logger.Error(ctx, "order_forward_failed", "Failed to hand order to storage", err)
		return orders.NormalizedOrder{}, internalError(err)
	}

	if service.recent != nil {
		service.recent.Add(order)
	}

	service.logger.Info(ctx, "order_accepted", "Webhook processed successfully", map[string]any{
		"delivery_id":  order.DeliveryID,
		"order_id":     order.OrderID,
		"store_id":     order.StoreID,
		"platform":     order.Platform,
		"provider":     order.Provider,
		"total_amount": order.TotalAmount.String(),
	})

	return order, nil
}
