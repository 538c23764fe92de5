package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"billminder/internal/notify"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	maxBackoff     = 30 * time.Second
	publishRetries = 3
	publishTimeout = 5 * time.Second

	// BillsChangedRoutingKey is not bound by this service; external consumers
	// bind their own queues to it.
	BillsChangedRoutingKey = "bills.changed"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type Config struct {
	URL           string
	Exchange      string
	ReminderQueue string
	ResponseQueue string
}

type Client struct {
	url           string
	exchangeName  string
	reminderQueue string
	responseQueue string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time
}

// NewClient dials the broker and declares the exchange and both queues.
func NewClient(cfg Config) (*Client, error) {
	c := &Client{
		url:           cfg.URL,
		exchangeName:  cfg.Exchange,
		reminderQueue: cfg.ReminderQueue,
		responseQueue: cfg.ResponseQueue,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connectLocked() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := setup(channel, c.exchangeName, c.reminderQueue, c.responseQueue); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queues: %w", err)
	}

	c.conn = conn
	c.channel = channel
	return nil
}

func setup(ch *amqp091.Channel, exchange string, queues ...string) error {
	err := ch.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, queue := range queues {
		_, err = ch.QueueDeclare(
			queue, // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}

		// Routing key is the queue name on the direct exchange.
		if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}
	return nil
}

// reconnect replaces a dead connection. Callers must not hold mu.
func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		return nil
	}
	c.closeLocked()

	if err := c.connectLocked(); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Reconnected to AMQP broker", "exchange", c.exchangeName)
	return nil
}

// PublishReminderDelivered announces a fired reminder on the reminders queue.
func (c *Client) PublishReminderDelivered(ctx context.Context, req notify.Request, opts notify.PresentationOptions) error {
	body, err := NewReminderDeliveredMessage(req, opts).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.reminderQueue, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published reminder delivered message",
		"notification_id", req.ID,
		"exchange", c.exchangeName,
		"queue", c.reminderQueue)
	return nil
}

// PublishBillsChanged announces that the bill collection was written.
func (c *Client) PublishBillsChanged(ctx context.Context, count int) error {
	body, err := NewBillsChangedMessage(count).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, BillsChangedRoutingKey, body); err != nil {
		return err
	}

	slog.DebugContext(ctx, "Published bills changed message", "count", count)
	return nil
}

// Deliver lets the client act as a notification deliverer.
func (c *Client) Deliver(ctx context.Context, req notify.Request, opts notify.PresentationOptions) error {
	return c.PublishReminderDelivered(ctx, req, opts)
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	var lastErr error
	for attempt := 0; attempt < publishRetries; attempt++ {
		if c.isCircuitOpen() {
			return fmt.Errorf("publish to %s: %w", routingKey, ErrCircuitOpen)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if attempt > 0 {
			wait := exponentialBackoff(attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			if err := c.reconnect(ctx); err != nil {
				c.recordFailure()
				lastErr = err
				continue
			}
		}

		lastErr = c.publishOnce(ctx, routingKey, body)
		if lastErr == nil {
			c.recordSuccess()
			return nil
		}
		if !isConnectionError(lastErr) {
			return fmt.Errorf("publish message: %w", lastErr)
		}

		c.recordFailure()
		slog.WarnContext(ctx, "AMQP publish failed, retrying",
			"attempt", attempt+1,
			"routing_key", routingKey,
			"error", lastErr)
	}
	return fmt.Errorf("publish message after %d attempts: %w", publishRetries, lastErr)
}

func (c *Client) publishOnce(ctx context.Context, routingKey string, body []byte) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return amqp091.ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// ResponseHandler processes one user action. An error requeues the message.
type ResponseHandler func(ctx context.Context, resp notify.Response) error

// ConsumeResponses delivers messages from the responses queue to handler until
// ctx is done, reconnecting with backoff when the broker goes away.
func (c *Client) ConsumeResponses(ctx context.Context, handler ResponseHandler) error {
	attempt := 0
	for {
		err := c.consumeOnce(ctx, handler)
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "Stopping response consumption", "reason", ctx.Err())
			return ctx.Err()
		}

		wait := exponentialBackoff(attempt)
		attempt++
		slog.WarnContext(ctx, "Response consumer interrupted, reconnecting",
			"error", err,
			"backoff", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		if err := c.reconnect(ctx); err != nil {
			c.recordFailure()
			continue
		}
		attempt = 0
	}
}

func (c *Client) consumeOnce(ctx context.Context, handler ResponseHandler) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return amqp091.ErrClosed
	}

	msgs, err := ch.Consume(
		c.responseQueue, // queue
		"",              // consumer
		false,           // auto-ack
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming reminder responses", "queue", c.responseQueue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			handleDelivery(ctx, delivery, handler)
		}
	}
}

// handleDelivery acks on success, drops malformed messages and requeues on
// handler errors.
func handleDelivery(ctx context.Context, d amqp091.Delivery, handler ResponseHandler) {
	msg, err := ResponseMessageFromJSON(d.Body)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to unmarshal response message", "error", err)
		d.Nack(false, false)
		return
	}

	if err := handler(ctx, msg.Response()); err != nil {
		slog.ErrorContext(ctx, "Failed to handle response message",
			"notification_id", msg.NotificationID,
			"action", msg.Action,
			"error", err)
		d.Nack(false, true)
		return
	}

	d.Ack(false)
	slog.InfoContext(ctx, "Processed response message",
		"notification_id", msg.NotificationID,
		"action", msg.Action)
}

func (c *Client) isCircuitOpen() bool {
	switch atomic.LoadInt32(&c.state) {
	case StateOpen:
		c.mu.Lock()
		last := c.lastFailure
		c.mu.Unlock()
		if time.Since(last) > openTimeout {
			atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
			return false
		}
		return true
	default:
		return false
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()

	failures := atomic.AddInt64(&c.failureCount, 1)
	if failures >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// exponentialBackoff returns 1s, 2s, 4s, ... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"connection", "EOF", "broken pipe", "closed network"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) closeLocked() {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	return err
}
