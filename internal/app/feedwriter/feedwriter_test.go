package feedwriter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	amqp "github.com/rabbitmq/amqp091-go"

	"sales-dashboard/internal/domain/orders"
	"sales-dashboard/internal/shared/contracts"
	"sales-dashboard/internal/shared/logger"
)

type ackRecorder struct {
	acked    bool
	nacked   bool
	requeued bool
}

func (a *ackRecorder) Ack(uint64, bool) error {
	a.acked = true
	return nil
}

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked = true
	a.requeued = requeue
	return nil
}

func (a *ackRecorder) Reject(_ uint64, requeue bool) error {
	return a.Nack(0, false, requeue)
}

type fakeFeed struct {
	stored []orders.NormalizedOrder
	err    error
}

func (f *fakeFeed) Store(_ context.Context, order orders.NormalizedOrder) error {
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, order)
	return nil
}

func validMessage(t *testing.T) []byte {
	t.Helper()
	order := orders.NormalizedOrder{
		DeliveryID:  "8d1c1f3e-0000-4000-8000-000000000001",
		OrderID:     "ORD-1",
		StoreID:     "S1",
		Platform:    "deliveroo",
		Provider:    "deliverect",
		TotalAmount: orders.ParseAmount("12.50"),
		Currency:    "GBP",
		Items:       json.RawMessage("[]"),
		Status:      "confirmed",
		ProcessedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		RawPayload:  json.RawMessage(`{"order_id":"ORD-1"}`),
	}
	body, err := json.Marshal(contracts.NewOrderMessage(order))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func deliver(h *DeliveryHandler, body []byte) *ackRecorder {
	ack := &ackRecorder{}
	h.Handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: body, MessageId: "msg-1"})
	return ack
}

func newTestHandler(feed *fakeFeed) *DeliveryHandler {
	h := NewDeliveryHandler(feed, logger.Discard())
	h.requeueDelay = 0
	return h
}

func TestHandleStoresAndAcks(t *testing.T) {
	feed := &fakeFeed{}
	ack := deliver(newTestHandler(feed), validMessage(t))

	if !ack.acked || ack.nacked {
		t.Fatalf("expected ack, got %+v", ack)
	}
	if len(feed.stored) != 1 || feed.stored[0].OrderID != "ORD-1" {
		t.Fatalf("unexpected stored orders %+v", feed.stored)
	}
	if !feed.stored[0].TotalAmount.Equal(orders.ParseAmount("12.5")) {
		t.Fatalf("amount changed on the wire: %s", feed.stored[0].TotalAmount)
	}
}

func TestHandleDeadLettersMalformedMessages(t *testing.T) {
	bodies := [][]byte{
		[]byte(`not json`),
		[]byte(`{"delivery_id":"x","order_id":"ORD-1","processed_at":"yesterday"}`),
		[]byte(`{"order_id":"ORD-1","processed_at":"2024-03-01T12:00:00.000Z"}`),
	}
	for _, body := range bodies {
		feed := &fakeFeed{}
		ack := deliver(newTestHandler(feed), body)
		if !ack.nacked || ack.requeued {
			t.Fatalf("expected nack without requeue for %s, got %+v", body, ack)
		}
		if len(feed.stored) != 0 {
			t.Fatalf("malformed message was stored: %s", body)
		}
	}
}

func TestHandleRequeuesTransientFailures(t *testing.T) {
	feed := &fakeFeed{err: Retryable(errors.New("connection reset"))}
	ack := deliver(newTestHandler(feed), validMessage(t))
	if !ack.nacked || !ack.requeued {
		t.Fatalf("expected requeue, got %+v", ack)
	}

	feed = &fakeFeed{err: errors.New("value too long for type character varying(50)")}
	ack = deliver(newTestHandler(feed), validMessage(t))
	if !ack.nacked || ack.requeued {
		t.Fatalf("expected dead-letter, got %+v", ack)
	}
}

func TestClassifyDatabaseErrors(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&pgconn.PgError{Code: "08006"}, true},
		{&pgconn.PgError{Code: "40001"}, true},
		{&pgconn.PgError{Code: "40P01"}, true},
		{&pgconn.PgError{Code: "57P01"}, true},
		{&pgconn.PgError{Code: "23505"}, false},
		{&pgconn.PgError{Code: "22001"}, false},
		{fmt.Errorf("insert: %w", context.DeadlineExceeded), true},
		{errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsRetryable(classify(tc.err)); got != tc.want {
			t.Fatalf("classify(%v): expected retryable=%v, got %v", tc.err, tc.want, got)
		}
	}
	if classify(nil) != nil {
		t.Fatal("classify(nil) must be nil")
	}
}

type fakeUoW struct{ err error }

func (u fakeUoW) WithinTx(ctx context.Context, fn func(context.Context) error) error {
	if u.err != nil {
		return u.err
	}
	return fn(ctx)
}

type fakeRepo struct {
	seen map[string]bool
}

func (r *fakeRepo) InsertOrder(_ context.Context, order orders.NormalizedOrder) (bool, error) {
	if r.seen[order.DeliveryID] {
		return false, nil
	}
	r.seen[order.DeliveryID] = true
	return true, nil
}

func TestServiceSkipsStoredDeliveries(t *testing.T) {
	repo := &fakeRepo{seen: map[string]bool{}}
	svc := NewService(fakeUoW{}, repo, logger.Discard())
	order := orders.NormalizedOrder{DeliveryID: "d-1", OrderID: "ORD-1"}

	if err := svc.Store(context.Background(), order); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Store(context.Background(), order); err != nil {
		t.Fatalf("redelivery must not fail: %v", err)
	}

	second := orders.NormalizedOrder{DeliveryID: "d-2", OrderID: "ORD-1"}
	if err := svc.Store(context.Background(), second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.seen) != 2 {
		t.Fatalf("expected two rows for the same order id, got %d", len(repo.seen))
	}
}

func TestServiceMarksConnectionFailuresRetryable(t *testing.T) {
	svc := NewService(fakeUoW{err: &pgconn.PgError{Code: "08001"}}, &fakeRepo{seen: map[string]bool{}}, logger.Discard())
	err := svc.Store(context.Background(), orders.NormalizedOrder{DeliveryID: "d-1"})
	if !IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}
