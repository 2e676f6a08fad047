package postgres

import (
	"context"

	"sales-dashboard/internal/domain/orders"
	"sales-dashboard/internal/ports"
)

// OrdersFeedRepo implements persistence for the live orders feed using pgx and SQL.
type OrdersFeedRepo struct{}

// NewOrdersFeedRepo constructs a new OrdersFeedRepo.
func NewOrdersFeedRepo() ports.OrderFeedRepository {
	return &OrdersFeedRepo{}
}

// InsertOrder stores one webhook delivery. A delivery id that is already stored
// (broker redelivery) is skipped and reported with inserted=false.
func (r *OrdersFeedRepo) InsertOrder(ctx context.Context, order orders.NormalizedOrder) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	// amounts travel as decimal text so no float rounding happens on the way in
	tag, err := tx.Exec(ctx, `
		INSERT INTO live_orders_feed (
			delivery_id, order_id, store_id, platform, provider,
			total_amount, currency, order_date, customer_name, items,
			delivery_fee, service_fee, tax_amount, status, processed_at, raw_payload
		)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10::jsonb, $11::numeric, $12::numeric, $13::numeric, $14, $15, $16::jsonb)
		ON CONFLICT (delivery_id) DO NOTHING`,
		order.DeliveryID,
		order.OrderID,
		order.StoreID,
		order.Platform,
		order.Provider,
		order.TotalAmount.String(),
		order.Currency,
		order.OrderDate,
		order.CustomerName,
		string(order.Items),
		order.DeliveryFee.String(),
		order.ServiceFee.String(),
		order.TaxAmount.String(),
		order.Status,
		order.ProcessedAt,
		string(order.RawPayload),
	)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}
