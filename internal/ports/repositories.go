package ports

import (
	"context"

	"sales-dashboard/internal/domain/health"
	"sales-dashboard/internal/domain/orders"
)

// UnitOfWork wraps a function in a DB transaction.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderFeedRepository stores accepted webhook deliveries in the live orders feed.
// Redelivery of an already stored delivery id is not an error.
type OrderFeedRepository interface {
	InsertOrder(ctx context.Context, order orders.NormalizedOrder) (inserted bool, err error)
}

// MonitorLogRepository keeps the monitor's status and error history.
type MonitorLogRepository interface {
	InsertStatusChange(ctx context.Context, change health.StatusChange) error
	InsertError(ctx context.Context, record health.ErrorRecord) error
}
