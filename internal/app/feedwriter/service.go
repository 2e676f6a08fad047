package feedwriter

import (
	"context"

	"sales-dashboard/internal/domain/orders"
	"sales-dashboard/internal/ports"
	"sales-dashboard/internal/shared/logger"
)

// feedService stores forwarded orders in the live orders feed.
type feedService struct {
	uow    ports.UnitOfWork
	repo   ports.OrderFeedRepository
	logger *logger.Logger
}

// NewService constructs a FeedService implementation.
func NewService(uow ports.UnitOfWork, repo ports.OrderFeedRepository, logger *logger.Logger) ports.FeedService {
	return &feedService{uow: uow, repo: repo, logger: logger}
}

// Store inserts the order. A delivery that is already stored is skipped, so
// broker redelivery never creates a second row. Transient database failures
// come back wrapped with Retryable.
func (service *feedService) Store(ctx context.Context, order orders.NormalizedOrder) error {
	var inserted bool
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		inserted, err = service.repo.InsertOrder(txCtx, order)
		return err
	})
	if err != nil {
		return classify(err)
	}

	if !inserted {
		service.logger.Debug(ctx, "delivery_already_stored", "Delivery already in the feed", map[string]any{
			"delivery_id": order.DeliveryID,
			"order_id":    order.OrderID,
		})
		return nil
	}

	service.logger.Info(ctx, "order_stored", "Order added to live feed", map[string]any{
		"delivery_id":  order.DeliveryID,
		"order_id":     order.OrderID,
		"store_id":     order.StoreID,
		"platform":     order.Platform,
		"total_amount": order.TotalAmount.String(),
	})
	return nil
}
