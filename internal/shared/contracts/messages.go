package contracts

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"sales-dashboard/internal/domain/health"
	"sales-dashboard/internal/domain/orders"
)

// OrderMessage is published to "orders_topic" for every accepted webhook delivery.
type OrderMessage struct {
	DeliveryID   string          `json:"delivery_id"`
	OrderID      string          `json:"order_id"`
	StoreID      string          `json:"store_id"`
	Platform     string          `json:"platform"`
	Provider     string          `json:"provider"`
	TotalAmount  decimal.Decimal `json:"total_amount"` // decimal string
	Currency     string          `json:"currency"`
	OrderDate    string          `json:"order_date"`
	CustomerName *string         `json:"customer_name"`
	Items        json.RawMessage `json:"items"`
	DeliveryFee  decimal.Decimal `json:"delivery_fee"`
	ServiceFee   decimal.Decimal `json:"service_fee"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	Status       string          `json:"status"`
	ProcessedAt  string          `json:"processed_at"`
	RawPayload   json.RawMessage `json:"raw_payload"`
}

// NewOrderMessage maps a normalized order onto the wire format.
func NewOrderMessage(order orders.NormalizedOrder) OrderMessage {
	return OrderMessage{
		DeliveryID:   order.DeliveryID,
		OrderID:      order.OrderID,
		StoreID:      order.StoreID,
		Platform:     order.Platform,
		Provider:     order.Provider,
		TotalAmount:  order.TotalAmount,
		Currency:     order.Currency,
		OrderDate:    order.OrderDate,
		CustomerName: order.CustomerName,
		Items:        order.Items,
		DeliveryFee:  order.DeliveryFee,
		ServiceFee:   order.ServiceFee,
		TaxAmount:    order.TaxAmount,
		Status:       order.Status,
		ProcessedAt:  orders.FormatTimestamp(order.ProcessedAt),
		RawPayload:   order.RawPayload,
	}
}

// ToOrder maps the wire format back onto the domain type.
func (msg OrderMessage) ToOrder() (orders.NormalizedOrder, error) {
	processedAt, err := time.Parse(time.RFC3339Nano, msg.ProcessedAt)
	if err != nil {
		return orders.NormalizedOrder{}, err
	}

	items := msg.Items
	if len(items) == 0 {
		items = json.RawMessage("[]")
	}

	return orders.NormalizedOrder{
		DeliveryID:   msg.DeliveryID,
		OrderID:      msg.OrderID,
		StoreID:      msg.StoreID,
		Platform:     msg.Platform,
		Provider:     msg.Provider,
		TotalAmount:  msg.TotalAmount,
		Currency:     msg.Currency,
		OrderDate:    msg.OrderDate,
		CustomerName: msg.CustomerName,
		Items:        items,
		DeliveryFee:  msg.DeliveryFee,
		ServiceFee:   msg.ServiceFee,
		TaxAmount:    msg.TaxAmount,
		Status:       msg.Status,
		ProcessedAt:  processedAt.UTC(),
		RawPayload:   msg.RawPayload,
	}, nil
}

// StatusChangeMessage is published to "webhook_status_fanout".
type StatusChangeMessage struct {
	OldStatus  string              `json:"old_status"`
	NewStatus  string              `json:"new_status"`
	ErrorCount int                 `json:"error_count"`
	Timestamp  time.Time           `json:"timestamp"`
	LastError  *health.ErrorRecord `json:"last_error,omitempty"`
}

// NewStatusChangeMessage maps a monitor status change onto the wire format.
func NewStatusChangeMessage(change health.StatusChange) StatusChangeMessage {
	return StatusChangeMessage{
		OldStatus:  string(change.Old),
		NewStatus:  string(change.New),
		ErrorCount: change.ErrorCount,
		Timestamp:  change.Timestamp.UTC(),
		LastError:  change.LastError,
	}
}
