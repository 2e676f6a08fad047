package feedwriter

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"sales-dashboard/internal/ports"
	"sales-dashboard/internal/shared/contracts"
	"sales-dashboard/internal/shared/logger"
	"sales-dashboard/internal/shared/rabbitmq"
)

var errIncompleteMessage = errors.New("order message lacks delivery_id or order_id")

// DeliveryHandler decodes, stores and acks/nacks forwarded orders.
type DeliveryHandler struct {
	svc    ports.FeedService
	logger *logger.Logger

	// requeueDelay throttles redelivery while the database is unavailable.
	requeueDelay time.Duration
}

// NewDeliveryHandler builds a handler storing through svc.
func NewDeliveryHandler(svc ports.FeedService, logger *logger.Logger) *DeliveryHandler {
	return &DeliveryHandler{svc: svc, logger: logger, requeueDelay: time.Second}
}

// Handle processes a single delivery. Malformed messages go to the DLQ,
// transient failures are requeued and anything else is dead-lettered.
func (h *DeliveryHandler) Handle(ctx context.Context, d amqp.Delivery) {
	if d.MessageId != "" {
		ctx = h.logger.WithRequestID(ctx, d.MessageId)
	}

	// decode the message
	var msg contracts.OrderMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		h.logger.Error(ctx, "message_decode_failed", "Failed to decode OrderMessage", err)
		_ = d.Nack(false, false)
		return
	}
	order, err := msg.ToOrder()
	if err == nil && (order.DeliveryID == "" || order.OrderID == "") {
		err = errIncompleteMessage
	}
	if err != nil {
		h.logger.Error(ctx, "message_invalid", "Order message is not usable", err)
		_ = d.Nack(false, false)
		return
	}

	err = h.svc.Store(ctx, order)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case IsRetryable(err):
		h.logger.Error(ctx, "store_retryable", "Storing order failed; requeuing for retry", err)
		rabbitmq.SleepWithContext(ctx, h.requeueDelay)
		_ = d.Nack(false, true)
	default:
		h.logger.Error(ctx, "store_failed", "Storing order failed; nacking to DLX", err)
		_ = d.Nack(false, false)
	}
}
