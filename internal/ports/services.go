package ports

import (
	"context"

	"sales-dashboard/internal/domain/health"
	"sales-dashboard/internal/domain/orders"
)

// IngestService handles POST /webhook/{provider}: parse → validate → normalize → forward.
type IngestService interface {
	Ingest(ctx context.Context, provider string, body []byte) (orders.NormalizedOrder, error)
}

// OrderSink receives every accepted order. A failed save is reported, never retried.
type OrderSink interface {
	Save(ctx context.Context, order orders.NormalizedOrder) error
}

// FeedService stores orders forwarded over the broker.
type FeedService interface {
	Store(ctx context.Context, order orders.NormalizedOrder) error
}

// HealthChecker probes the ingestion endpoint once.
type HealthChecker interface {
	Check(ctx context.Context) (health.Report, error)
}

// MonitorAudit records monitor history. Implementations report failures,
// the monitor logs and discards them.
type MonitorAudit interface {
	RecordStatusChange(ctx context.Context, change health.StatusChange) error
	RecordError(ctx context.Context, record health.ErrorRecord) error
}

// Publisher sends a message to a broker exchange.
type Publisher interface {
	Publish(exchange, routingKey string, body []byte, priority uint8) error
}

// KeyedWriter appends a keyed record to a log-structured broker.
type KeyedWriter interface {
	Send(ctx context.Context, key, value []byte) error
}
