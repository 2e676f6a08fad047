package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout renders timestamps in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Defaults applied to optional fields.
const (
	DefaultCurrency = "GBP"
	DefaultStatus   = "confirmed"
)

// Receipt describes how an event reached the gateway.
type Receipt struct {
	DeliveryID string
	Provider   string
	ReceivedAt time.Time
}

// NormalizedOrder is an accepted order event with defaults applied.
// It is created once per accepted request and never mutated afterwards.
type NormalizedOrder struct {
	DeliveryID   string
	OrderID      string
	StoreID      string
	Platform     string
	Provider     string
	TotalAmount  decimal.Decimal
	Currency     string
	OrderDate    string
	CustomerName *string
	Items        json.RawMessage
	DeliveryFee  decimal.Decimal
	ServiceFee   decimal.Decimal
	TaxAmount    decimal.Decimal
	Status       string
	ProcessedAt  time.Time
	RawPayload   json.RawMessage
}

// FormatTimestamp renders t using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Normalize validates the event and builds the normalized order.
func Normalize(event OrderEvent, receipt Receipt) (NormalizedOrder, error) {
	if err := event.Validate(); err != nil {
		return NormalizedOrder{}, err
	}

	now := receipt.ReceivedAt.UTC()

	order := NormalizedOrder{
		DeliveryID:  receipt.DeliveryID,
		OrderID:     event.OrderID.TextOr(""),
		StoreID:     event.StoreID.TextOr(""),
		Platform:    event.Platform.TextOr(""),
		Provider:    receipt.Provider,
		TotalAmount: event.TotalAmount.Amount(),
		Currency:    event.Currency.TextOr(DefaultCurrency),
		OrderDate:   event.OrderDate.TextOr(FormatTimestamp(now)),
		Items:       json.RawMessage("[]"),
		DeliveryFee: event.DeliveryFee.Amount(),
		ServiceFee:  event.ServiceFee.Amount(),
		TaxAmount:   event.TaxAmount.Amount(),
		Status:      event.Status.TextOr(DefaultStatus),
		ProcessedAt: now,
		RawPayload:  append(json.RawMessage(nil), event.Raw()...),
	}

	if name, ok := event.CustomerName.Text(); ok {
		order.CustomerName = &name
	}
	if event.Items.Present() {
		order.Items = append(json.RawMessage(nil), event.Items.raw...)
	}

	return order, nil
}
