package rabbitmq

import (
	"context"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"sales-dashboard/internal/shared/logger"
)

const (
	retryBaseDelay = time.Second      // backoff base
	retryMaxDelay  = 30 * time.Second // backoff cap
)

// ConsumerChannels opens consumer channels. *Client implements it.
type ConsumerChannels interface {
	NewConsumerChannel(prefetch int) (*amqp.Channel, error)
}

// ConsumeForever continuously (re)creates a channel and consumes queue until ctx is done.
// Every delivery is passed to handle, which owns the ack/nack decision.
func ConsumeForever(ctx context.Context, rmq ConsumerChannels, log *logger.Logger, queue, consumerTag string, prefetch int, handle func(context.Context, amqp.Delivery)) {
	backoff := retryBaseDelay
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// acquire a fresh channel with QoS
		ch, err := rmq.NewConsumerChannel(prefetch)
		if err != nil {
			log.Error(ctx, "rabbitmq_channel_open_failed", "Failed to open consumer channel", err)
			if !SleepWithContext(ctx, backoff) {
				return
			}
			backoff = NextBackoff(backoff, retryMaxDelay)
			continue
		}

		// start consuming with manual acks
		deliveries, err := ch.Consume(queue, consumerTag, false, false, false, false, nil)
		if err != nil {
			_ = ch.Close()
			log.Error(ctx, "rabbitmq_consume_failed", "Failed to start consuming", err)
			if !SleepWithContext(ctx, backoff) {
				return
			}
			backoff = NextBackoff(backoff, retryMaxDelay)
			continue
		}

		// reset backoff after a successful subscribe
		backoff = retryBaseDelay
		log.Info(ctx, "consumer_started", "Consuming from "+queue, map[string]any{"queue": queue, "prefetch": prefetch})

		closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	consumption:
		for {
			select {
			case <-ctx.Done():
				// unacked in-flight deliveries go back to the queue
				_ = ch.Close()
				return

			case amqpErr := <-closed:
				if amqpErr != nil {
					log.Error(ctx, "rabbitmq_channel_closed", "Consumer channel closed", amqpErr)
				} else {
					log.Error(ctx, "rabbitmq_channel_closed", "Consumer channel closed", errors.New("unknown channel close"))
				}
				break consumption

			case d, ok := <-deliveries:
				if !ok {
					log.Error(ctx, "rabbitmq_deliveries_closed", "Deliveries channel closed", errors.New("deliveries channel closed"))
					break consumption
				}
				handle(ctx, d)
			}
		}

		// small delay before attempting to recreate channel
		if !SleepWithContext(ctx, backoff) {
			return
		}
		backoff = NextBackoff(backoff, retryMaxDelay)
	}
}

// SleepWithContext sleeps for the given duration or returns false early if ctx is done.
func SleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// NextBackoff doubles curr, capped at max.
func NextBackoff(curr, max time.Duration) time.Duration {
	n := curr * 2
	if n > max {
		return max
	}
	return n
}
