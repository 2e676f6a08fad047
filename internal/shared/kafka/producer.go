package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"sales-dashboard/internal/ports"
	"sales-dashboard/internal/shared/config"
)

// Producer writes keyed order records to a single topic.
type Producer struct {
	writer *kafka.Writer
}

var _ ports.KeyedWriter = (*Producer)(nil)

// NewProducer builds a synchronous writer so a failed write reaches the caller.
func NewProducer(cfg config.KafkaConfig) *Producer {
	return &Producer{writer: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{}, // same order id, same partition
		BatchTimeout: 5 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 5 * time.Second,
		Async:        false,
	}}
}

// Send writes one record and waits for the broker acknowledgement.
func (p *Producer) Send(ctx context.Context, key, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
