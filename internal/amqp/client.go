package amqp

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/goliatone/go-ledger-cache/internal/logging"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures = 5
	openTimeout = 30 * time.Second
	maxBackoff  = 30 * time.Second
)

// Handler processes one message body. Errors in the validation, bad input
// or not found categories reject the message; any other error requeues it.
type Handler func(ctx context.Context, body []byte) error

// Client publishes JSON messages to a durable direct exchange and consumes
// them from the bound queue with manual acknowledgements.
type Client struct {
	url            string
	exchangeName   string
	queueName      string
	prefetch       int
	publishTimeout time.Duration
	logger         *slog.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time
}

// NewClient dials the broker and declares the exchange, queue and binding.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		url:            cfg.URL,
		exchangeName:   cfg.Exchange,
		queueName:      cfg.Queue,
		prefetch:       cfg.Prefetch,
		publishTimeout: cfg.PublishTimeout,
		logger:         logging.Component(logger, logging.ComponentAMQP),
	}
	if _, err := c.ensureChannel(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) ensureChannel() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		return c.channel, nil
	}
	c.closeLocked()

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryExternal, "dial amqp")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, errors.CategoryExternal, "open amqp channel")
	}
	c.conn, c.channel = conn, ch

	if err := c.setup(ch); err != nil {
		c.closeLocked()
		return nil, errors.Wrap(err, errors.CategoryExternal, "declare amqp topology")
	}
	return ch, nil
}

func (c *Client) setup(ch *amqp091.Channel) error {
	if err := ch.ExchangeDeclare(c.exchangeName, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(c.queueName, true, false, false, false, nil); err != nil {
		return err
	}
	// routing key is the queue name
	if err := ch.QueueBind(c.queueName, c.queueName, c.exchangeName, false, nil); err != nil {
		return err
	}
	if c.prefetch > 0 {
		return ch.Qos(c.prefetch, 0, false)
	}
	return nil
}

// Publish encodes v as JSON and publishes it as a persistent message.
func (c *Client) Publish(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return errors.New("circuit breaker is open", errors.CategoryExternal).
			WithTextCode("AMQP_CIRCUIT_OPEN")
	}

	body, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "encode amqp message")
	}

	ch, err := c.ensureChannel()
	if err != nil {
		c.recordFailure()
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(ctx, c.exchangeName, c.queueName, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			c.reset()
		}
		return errors.Wrap(err, errors.CategoryExternal, "publish amqp message")
	}

	c.recordSuccess()
	c.logger.DebugContext(ctx, "message published", logging.FieldOperation, logging.OpPublish, "queue", c.queueName)
	return nil
}

// Consume delivers messages to handler until ctx is done, reconnecting
// with exponential backoff when the broker goes away.
func (c *Client) Consume(ctx context.Context, handler Handler) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msgs, err := c.startConsume()
		if err == nil {
			attempt = 0
			c.logger.InfoContext(ctx, "consuming", logging.FieldOperation, logging.OpConsume, "queue", c.queueName)
			err = c.drain(ctx, msgs, handler)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		wait := exponentialBackoff(attempt)
		attempt++
		c.logger.WarnContext(ctx, "consumer interrupted, reconnecting", logging.Err(err), logging.FieldDuration, wait)
		c.reset()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) startConsume() (<-chan amqp091.Delivery, error) {
	ch, err := c.ensureChannel()
	if err != nil {
		return nil, err
	}
	msgs, err := ch.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryExternal, "start consuming")
	}
	return msgs, nil
}

func (c *Client) drain(ctx context.Context, msgs <-chan amqp091.Delivery, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed", errors.CategoryExternal)
			}
			c.dispatch(ctx, &d, d.Body, handler)
		}
	}
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type outcome int

const (
	acked outcome = iota
	rejected
	requeued
)

func (c *Client) dispatch(ctx context.Context, ack acknowledger, body []byte, handler Handler) outcome {
	err := handler(ctx, body)
	switch {
	case err == nil:
		if aerr := ack.Ack(false); aerr != nil {
			c.logger.WarnContext(ctx, "ack failed", logging.Err(aerr))
		}
		return acked
	case isPermanent(err):
		c.logger.ErrorContext(ctx, "message rejected", logging.Err(err))
		if nerr := ack.Nack(false, false); nerr != nil {
			c.logger.WarnContext(ctx, "nack failed", logging.Err(nerr))
		}
		return rejected
	default:
		c.logger.WarnContext(ctx, "message requeued", logging.Err(err))
		if nerr := ack.Nack(false, true); nerr != nil {
			c.logger.WarnContext(ctx, "nack failed", logging.Err(nerr))
		}
		return requeued
	}
}

func isPermanent(err error) bool {
	return errors.HasCategory(err, errors.CategoryValidation) ||
		errors.HasCategory(err, errors.CategoryBadInput) ||
		errors.HasCategory(err, errors.CategoryNotFound)
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()

	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	n := atomic.AddInt64(&c.failureCount, 1)
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

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
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
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

// Close releases the channel and the connection.
func (c *Client) Close() error {
	c.reset()
	return nil
}
