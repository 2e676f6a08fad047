package rabbitmq

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"sales-dashboard/internal/shared/config"
	"sales-dashboard/internal/shared/logger"
)

// Topology names shared by publishers and consumers.
const (
	OrdersExchange       = "orders_topic"
	OrdersDLX            = "orders_topic_dlx"
	StatusFanout         = "webhook_status_fanout"
	OrdersFeedQueue      = "orders_feed_queue"
	OrdersFeedDLQ        = "orders_feed_dlq"
	StatusNotifyQueue    = "webhook_status_notifications"
	OrderRoutingKeyBase  = "webhook.order."
	orderRoutingBindings = OrderRoutingKeyBase + "*"

	// maxPlatformKey keeps routing keys well inside the 255-byte AMQP shortstr.
	maxPlatformKey = 64
)

// OrderRoutingKey returns the routing key for an order from the given platform.
func OrderRoutingKey(platform string) string {
	platform = strings.ToLower(strings.TrimSpace(platform))
	platform = strings.NewReplacer(".", "_", "*", "_", "#", "_", " ", "_").Replace(platform)
	if platform == "" {
		platform = "unknown"
	}
	if len(platform) > maxPlatformKey {
		platform = shortenPlatform(platform)
	}
	return OrderRoutingKeyBase + platform
}

// shortenPlatform keeps a readable prefix and appends a digest of the full
// name, so distinct long platforms still get distinct keys.
func shortenPlatform(platform string) string {
	sum := sha256.Sum256([]byte(platform))
	digest := hex.EncodeToString(sum[:8])

	cut := maxPlatformKey - len(digest) - 1
	for cut > 0 && !utf8.RuneStart(platform[cut]) {
		cut--
	}
	return platform[:cut] + "_" + digest
}

// Client is a resilient RabbitMQ connector with auto-reconnect and topology setup.
type Client struct {
	url    string
	logger *logger.Logger
	logCtx context.Context // carries context with request_id across reconnects

	mu      sync.RWMutex
	conn    *amqp.Connection
	pubChan *amqp.Channel

	closed    chan struct{}
	reconnect chan struct{}
}

// MQPublisher is a simple RabbitMQ publisher using the Client.
type MQPublisher struct {
	Client *Client
}

// Publish sends a message to the specified RabbitMQ exchange and routing key.
func (p *MQPublisher) Publish(exchange, routingKey string, body []byte, priority uint8) error {
	return p.Client.PublishMessage(exchange, routingKey, body, priority)
}

// ConnectRabbitMQ establishes connection and starts a background watcher that reconnects on failures.
func ConnectRabbitMQ(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Client, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d/",
		cfg.RabbitMQ.User, cfg.RabbitMQ.Password, cfg.RabbitMQ.Host, cfg.RabbitMQ.Port)

	client := &Client{
		url:       url,
		logger:    log,
		logCtx:    context.WithoutCancel(ctx), // avoid ctx cancel on reconnects
		closed:    make(chan struct{}),
		reconnect: make(chan struct{}, 1),
	}

	// initial connect (single attempt; further retries happen in the watcher)
	if err := client.connectOnce(ctx); err != nil {
		return nil, err
	}

	// background watcher for reconnects
	go client.watch()

	return client, nil
}

// NewConsumerChannel returns a fresh channel with prefetch (QoS) applied.
func (client *Client) NewConsumerChannel(prefetch int) (*amqp.Channel, error) {
	client.mu.RLock()
	conn := client.conn
	client.mu.RUnlock()

	// quick fail if no connection
	if conn == nil || conn.IsClosed() {
		return nil, errors.New("rabbitmq: connection is not ready")
	}

	// open a new channel
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	// set prefetch if requested
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			ch.Close()
			return nil, err
		}
	}

	return ch, nil
}

// PublishMessage publishes JSON messages with persistence, a message id and AMQP priority.
func (client *Client) PublishMessage(exchange, routingKey string, body []byte, priority uint8) error {
	client.mu.RLock()
	ch := client.pubChan
	conn := client.conn
	client.mu.RUnlock()

	// quick fail if no channel
	if conn == nil || conn.IsClosed() {
		return errors.New("rabbitmq: connection is not open")
	}
	if ch == nil || ch.IsClosed() {
		return errors.New("rabbitmq: publish channel is not open")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return ch.PublishWithContext(ctx,
		exchange, routingKey, false, false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			Priority:     priority,
			ContentType:  "application/json",
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
}

// Ping checks connectivity by dialing TCP to the RabbitMQ.
func (client *Client) Ping(timeout time.Duration) error {
	// grab conn under lock
	client.mu.RLock()
	conn := client.conn
	url := client.url
	client.mu.RUnlock()

	// quick fail if no connection
	if conn == nil || conn.IsClosed() {
		return errors.New("rabbitmq: no connection")
	}

	// parse URL to extract host:port for TCP dial
	u, err := amqp.ParseURI(url)
	if err != nil {
		return fmt.Errorf("rabbitmq: bad url: %w", err)
	}
	addr := net.JoinHostPort(u.Host, fmt.Sprintf("%d", u.Port))

	// dial TCP to the RabbitMQ host:port to verify connectivity
	d := net.Dialer{Timeout: timeout}
	c, err := d.Dial("tcp", addr)
	if err != nil {
		return err
	}

	_ = c.Close()
	return nil
}

// Close gracefully stops the watcher and closes AMQP resources.
func (client *Client) Close() {
	select {
	case <-client.closed:
		// already closed
	default:
		close(client.closed)
	}

	client.mu.Lock()
	if client.pubChan != nil {
		_ = client.pubChan.Close()
		client.pubChan = nil
	}
	if client.conn != nil {
		_ = client.conn.Close()
		client.conn = nil
	}
	client.mu.Unlock()
}

// --- internals ---

// connectOnce tries to connect and set up topology once.
func (client *Client) connectOnce(ctx context.Context) error {
	start := time.Now().UTC()

	// use DialConfig to set heartbeat and TCP dial timeout
	conn, err := amqp.DialConfig(client.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(10 * time.Second),
	})
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}

	// declare/ensure topology idempotently
	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	client.mu.Lock()
	client.conn = conn
	if client.pubChan != nil {
		_ = client.pubChan.Close()
	}
	client.pubChan = ch
	client.mu.Unlock()

	// watch for connection/channel closures and trigger reconnect
	go func() {
		// Either the connection or the publisher channel closing should trigger reconnect
		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-client.closed:
			return
		case <-connClosed:
		case <-chClosed:
		}

		// Try to enqueue a reconnect signal
		select {
		case client.reconnect <- struct{}{}:
		default:
			// already enqueued; no-op
		}
	}()

	client.logger.Info(ctx, "rabbitmq_connected",
		"Connected to RabbitMQ; exchanges: orders_topic, webhook_status_fanout",
		map[string]any{"duration_ms": time.Since(start).Milliseconds()})

	return nil
}

// watch runs in background and attempts reconnects with exponential backoff.
func (client *Client) watch() {
	// reconnect loop with exponential backoff
	backoff := retryBaseDelay
	for {
		select {
		case <-client.closed:
			return
		case <-client.reconnect:
			// attempt reconnect until success or Close()
			for {
				select {
				case <-client.closed:
					return
				default:
				}

				ctx, cancel := context.WithTimeout(client.logCtx, 30*time.Second)
				err := client.connectOnce(ctx)
				cancel()

				if err == nil {
					// reset backoff on success
					backoff = retryBaseDelay
					client.logger.Info(client.logCtx, "rabbitmq_reconnected", "Reconnected to RabbitMQ and re-ensured topology", nil)
					break
				}

				// log retry attempt and sleep with backoff
				client.logger.Error(client.logCtx, "retry_attempted", fmt.Sprintf("RabbitMQ reconnect failed: %v", err), err)

				select {
				case <-client.closed:
					return
				case <-time.After(backoff):
				}
				backoff = NextBackoff(backoff, retryMaxDelay)
			}
		}
	}
}

// declareTopology declares exchanges, queues, and bindings.
func declareTopology(ch *amqp.Channel) error {
	// exchanges
	if err := ch.ExchangeDeclare(OrdersExchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(OrdersDLX, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(StatusFanout, "fanout", true, false, false, false, nil); err != nil {
		return err
	}

	// live feed queue: durable, dead-letters to DLX
	_, err := ch.QueueDeclare(
		OrdersFeedQueue, true, false, false, false, amqp.Table{
			"x-dead-letter-exchange": OrdersDLX,
		},
	)
	if err != nil {
		return err
	}
	if err := ch.QueueBind(OrdersFeedQueue, orderRoutingBindings, OrdersExchange, false, nil); err != nil {
		return err
	}

	// DLQ keeps everything the feed writer rejected
	if _, err := ch.QueueDeclare(OrdersFeedDLQ, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(OrdersFeedDLQ, "#", OrdersDLX, false, nil); err != nil {
		return err
	}

	// monitor status notifications bound to fanout
	if _, err := ch.QueueDeclare(StatusNotifyQueue, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(StatusNotifyQueue, "", StatusFanout, false, nil); err != nil {
		return err
	}

	return nil
}
