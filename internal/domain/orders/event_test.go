package orders

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestValuePresent(t *testing.T) {
	cases := []struct {
		token string
		want  bool
	}{
		{"", false},
		{"null", false},
		{`""`, false},
		{"0", false},
		{"0.0", false},
		{"-0", false},
		{"false", false},
		{"true", true},
		{`"0"`, true},
		{`"abc"`, true},
		{"12", true},
		{"1e400", true},
		{"[]", true},
		{"{}", true},
	}

	for _, tc := range cases {
		if got := RawValue(tc.token).Present(); got != tc.want {
			t.Fatalf("Present(%q): expected %v, got %v", tc.token, tc.want, got)
		}
	}
}

func TestValueText(t *testing.T) {
	cases := []struct {
		token string
		want  string
	}{
		{`"ORD-1"`, "ORD-1"},
		{"12345", "12345"},
		{"true", "true"},
		{`{ "a": 1 }`, `{"a":1}`},
	}

	for _, tc := range cases {
		got, ok := RawValue(tc.token).Text()
		if !ok || got != tc.want {
			t.Fatalf("Text(%q): expected %q, got %q (ok=%v)", tc.token, tc.want, got, ok)
		}
	}

	if got := RawValue("null").TextOr("GBP"); got != "GBP" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestAmountIsPermissive(t *testing.T) {
	cases := []struct {
		token string
		want  string
	}{
		{`"12.50"`, "12.5"},
		{`"12.5abc"`, "12.5"},
		{`"abc"`, "0"},
		{`"  7"`, "7"},
		{`".5"`, "0.5"},
		{`"-.5"`, "-0.5"},
		{`"3."`, "3"},
		{`"1e3"`, "1000"},
		{`"+4"`, "4"},
		{`"Infinity"`, "0"},
		{`"1e400"`, "0"},
		{"1e400", "0"},
		{`"1e30000000"`, "0"},
		{`"-1e30000000"`, "0"},
		{`"1e-30000000"`, "0"},
		{`"2.5e-3"`, "0.0025"},
		{"42.99", "42.99"},
		{"true", "0"},
		{"null", "0"},
		{"[1]", "0"},
		{"", "0"},
	}

	for _, tc := range cases {
		got := RawValue(tc.token).Amount()
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("Amount(%q): expected %s, got %s", tc.token, tc.want, got)
		}
	}
}

func TestParseOrderEventRejectsMalformedBodies(t *testing.T) {
	bodies := []string{"", "{", "not json", `[1,2]`, `"str"`, `{"a":1} trailing`}

	for _, body := range bodies {
		_, err := ParseOrderEvent([]byte(body))
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("body %q: expected ValidationError, got %v", body, err)
		}
		if verr.TextCode != TextCodeInvalidJSON {
			t.Fatalf("body %q: expected %q text code, got %q", body, TextCodeInvalidJSON, verr.TextCode)
		}
	}
}

func TestValidateListsMissingFieldsInDeclaredOrder(t *testing.T) {
	cases := []struct {
		body string
		want []string
	}{
		{`{}`, []string{"order_id", "store_id", "platform", "total_amount"}},
		{`{"order_id":"A","store_id":"S","platform":"ubereats","total_amount":10}`, nil},
		{`{"order_id":"A","platform":"ubereats"}`, []string{"store_id", "total_amount"}},
		{`{"order_id":0,"store_id":"","platform":null,"total_amount":false}`, []string{"order_id", "store_id", "platform", "total_amount"}},
		{`{"order_id":"A","store_id":"S","platform":"p","total_amount":"abc"}`, nil},
	}

	for _, tc := range cases {
		event, err := ParseOrderEvent([]byte(tc.body))
		if err != nil {
			t.Fatalf("parse %s: %v", tc.body, err)
		}

		err = event.Validate()
		if tc.want == nil {
			if err != nil {
				t.Fatalf("body %s: expected no error, got %v", tc.body, err)
			}
			continue
		}

		if got := MissingFields(err); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("body %s: expected missing %v, got %v", tc.body, tc.want, got)
		}

		svcErr := err.(*ValidationError).ToServiceError()
		if svcErr.TextCode != TextCodeMissingFields {
			t.Fatalf("expected %q text code, got %q", TextCodeMissingFields, svcErr.TextCode)
		}
		if svcErr.Code != 400 {
			t.Fatalf("expected code 400, got %d", svcErr.Code)
		}
	}
}

func TestNormalizeAppliesDefaults(t *testing.T) {
	body := `{"order_id":12345,"store_id":"S1","platform":"deliveroo","total_amount":"abc"}`
	event, err := ParseOrderEvent([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	received := time.Date(2024, 3, 1, 18, 30, 0, 123456789, time.FixedZone("CET", 3600))
	order, err := Normalize(event, Receipt{DeliveryID: "d-1", Provider: "deliverect", ReceivedAt: received})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	if order.OrderID != "12345" {
		t.Fatalf("expected numeric id kept as literal, got %q", order.OrderID)
	}
	if !order.TotalAmount.IsZero() {
		t.Fatalf("expected zero total, got %s", order.TotalAmount)
	}
	if order.Currency != "GBP" {
		t.Fatalf("expected GBP, got %q", order.Currency)
	}
	if order.OrderDate != "2024-03-01T17:30:00.123Z" {
		t.Fatalf("expected receipt time as order date, got %q", order.OrderDate)
	}
	if order.CustomerName != nil {
		t.Fatalf("expected nil customer name, got %q", *order.CustomerName)
	}
	if string(order.Items) != "[]" {
		t.Fatalf("expected empty items, got %s", order.Items)
	}
	if !order.DeliveryFee.IsZero() || !order.ServiceFee.IsZero() || !order.TaxAmount.IsZero() {
		t.Fatalf("expected zero fees, got %s %s %s", order.DeliveryFee, order.ServiceFee, order.TaxAmount)
	}
	if order.Status != "confirmed" {
		t.Fatalf("expected confirmed, got %q", order.Status)
	}
	if order.Provider != "deliverect" || order.DeliveryID != "d-1" {
		t.Fatalf("unexpected receipt fields: %+v", order)
	}
	if !order.ProcessedAt.Equal(received) || order.ProcessedAt.Location() != time.UTC {
		t.Fatalf("expected processed_at in UTC, got %v", order.ProcessedAt)
	}
	if string(order.RawPayload) != body {
		t.Fatalf("expected raw payload retained, got %s", order.RawPayload)
	}
}

func TestNormalizeKeepsSuppliedValues(t *testing.T) {
	body := `{
		"order_id": "ORD-9", "store_id": "S2", "platform": "ubereats",
		"total_amount": 25.40, "currency": "EUR", "order_date": "2024-01-01T10:00:00Z",
		"customer_name": "Ada", "items": [{"name": "Pizza", "qty": 1}],
		"delivery_fee": "2.50", "service_fee": 0.99, "tax_amount": "4.23 VAT", "status": "preparing"
	}`
	event, err := ParseOrderEvent([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	order, err := Normalize(event, Receipt{Provider: "deliverect", ReceivedAt: time.Now()})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	if !order.TotalAmount.Equal(decimal.RequireFromString("25.40")) {
		t.Fatalf("expected 25.40, got %s", order.TotalAmount)
	}
	if order.Currency != "EUR" || order.OrderDate != "2024-01-01T10:00:00Z" || order.Status != "preparing" {
		t.Fatalf("expected supplied values, got %+v", order)
	}
	if order.CustomerName == nil || *order.CustomerName != "Ada" {
		t.Fatalf("expected customer name Ada, got %v", order.CustomerName)
	}
	if !order.TaxAmount.Equal(decimal.RequireFromString("4.23")) {
		t.Fatalf("expected 4.23 tax, got %s", order.TaxAmount)
	}
	if string(order.RawPayload) == body {
		t.Fatalf("expected compacted raw payload")
	}
}

func TestNormalizeRejectsInvalidEvent(t *testing.T) {
	event, err := ParseOrderEvent([]byte(`{"order_id":"A"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	_, err = Normalize(event, Receipt{ReceivedAt: time.Now()})
	if got := MissingFields(err); !reflect.DeepEqual(got, []string{"store_id", "platform", "total_amount"}) {
		t.Fatalf("unexpected missing fields %v", got)
	}
}
