package orders

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

// RequiredFields lists the fields every inbound order event must carry, in the
// order they are reported back to integrators.
var RequiredFields = []string{"order_id", "store_id", "platform", "total_amount"}

// Value is a loosely typed JSON value taken verbatim from a platform payload.
// Delivery platforms disagree on scalar types (ids as numbers, amounts as
// strings), so values are kept raw and interpreted on demand.
type Value struct {
	raw json.RawMessage
}

// UnmarshalJSON keeps a copy of the raw token.
func (v *Value) UnmarshalJSON(data []byte) error {
	v.raw = append(v.raw[:0], data...)
	return nil
}

// MarshalJSON writes the raw token back, or null when the value was absent.
func (v Value) MarshalJSON() ([]byte, error) {
	if len(v.raw) == 0 {
		return []byte("null"), nil
	}
	return v.raw, nil
}

// RawValue builds a Value from a JSON token.
func RawValue(token string) Value {
	return Value{raw: json.RawMessage(token)}
}

// Present reports whether the value counts as supplied: absent, null, "",
// numeric zero and false do not; arrays, objects and any other string do.
func (v Value) Present() bool {
	raw := bytes.TrimSpace(v.raw)
	if len(raw) == 0 {
		return false
	}

	switch raw[0] {
	case 'n', 'f':
		return false
	case 't', '[', '{':
		return true
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return false
		}
		return s != ""
	default:
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return false
		}
		return f != 0
	}
}

// Text returns the value as a string: string contents as-is, numbers and
// booleans as their literal, composites as compact JSON.
func (v Value) Text() (string, bool) {
	if !v.Present() {
		return "", false
	}

	raw := bytes.TrimSpace(v.raw)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw), true
	}
	return buf.String(), true
}

// TextOr returns Text or the fallback when the value is not present.
func (v Value) TextOr(fallback string) string {
	if s, ok := v.Text(); ok {
		return s
	}
	return fallback
}

// OrderEvent is an order payload as posted by a delivery platform.
type OrderEvent struct {
	OrderID      Value `json:"order_id"`
	StoreID      Value `json:"store_id"`
	Platform     Value `json:"platform"`
	TotalAmount  Value `json:"total_amount"`
	Currency     Value `json:"currency"`
	OrderDate    Value `json:"order_date"`
	CustomerName Value `json:"customer_name"`
	Items        Value `json:"items"`
	DeliveryFee  Value `json:"delivery_fee"`
	ServiceFee   Value `json:"service_fee"`
	TaxAmount    Value `json:"tax_amount"`
	Status       Value `json:"status"`

	raw json.RawMessage
}

// ParseOrderEvent decodes a webhook body. The body must be a JSON object.
func ParseOrderEvent(body []byte) (OrderEvent, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return OrderEvent{}, invalidJSON(errNotObject)
	}

	var event OrderEvent
	if err := json.Unmarshal(trimmed, &event); err != nil {
		return OrderEvent{}, invalidJSON(err)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return OrderEvent{}, invalidJSON(err)
	}
	event.raw = compact.Bytes()

	return event, nil
}

// Raw returns the original payload.
func (event OrderEvent) Raw() json.RawMessage {
	return event.raw
}

// Missing returns the required fields that are not present, in declared order.
func (event OrderEvent) Missing() []string {
	values := map[string]Value{
		"order_id":     event.OrderID,
		"store_id":     event.StoreID,
		"platform":     event.Platform,
		"total_amount": event.TotalAmount,
	}

	var missing []string
	for _, name := range RequiredFields {
		if !values[name].Present() {
			missing = append(missing, name)
		}
	}
	return missing
}

// Validate rejects events that lack any required field.
func (event OrderEvent) Validate() error {
	if missing := event.Missing(); len(missing) > 0 {
		return missingFields(missing)
	}
	return nil
}
