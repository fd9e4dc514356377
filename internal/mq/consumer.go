package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrPermanent — повтор бессмысленен, сообщение сразу уходит в DLQ.
var ErrPermanent = errors.New("permanent failure")

// Handler обрабатывает одно сообщение. Ошибка — nack.
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery — полученное сообщение. Payload в Message — json.RawMessage.
type Delivery struct {
	Message Message
	Raw     amqp.Delivery
}

// Ack подтверждает обработку.
func (d *Delivery) Ack() error {
	return d.Raw.Ack(false)
}

// Nack отклоняет сообщение: requeue=false отправляет его в DLQ.
func (d *Delivery) Nack(requeue bool) error {
	return d.Raw.Nack(false, requeue)
}

// envelope — Message на проводе, payload декодируется лениво.
type envelope struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Consumer читает очередь с ручным ack и переживает переподключения Connection.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    string
	handler  Handler
	prefetch int

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	stopped    bool
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	Queue   string
	Handler Handler

	// Prefetch — сколько неподтверждённых сообщений держать (default: 1).
	Prefetch int
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		conn:     conn,
		logger:   logger.With("queue", cfg.Queue),
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: max(cfg.Prefetch, 1),
	}
}

// Start блокируется до отмены ctx или Stop. После Stop сразу возвращает context.Canceled.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return context.Canceled
	}
	c.cancelFunc = cancel
	c.mu.Unlock()

	for {
		deliveries, err := c.subscribe()
		if err == nil {
			c.logger.Info("consumer subscribed")
			err = c.drain(ctx, deliveries)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("consumer interrupted, waiting for reconnect", "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
		}
	}
}

// Stop прерывает Start. Безопасен для конкурентного вызова с Start.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", c.queue, err)
	}
	return deliveries, nil
}

func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handle(ctx, raw)
		}
	}
}

// handle вызывает Handler. Первая неудача — одна повторная доставка,
// вторая или ErrPermanent — DLQ.
func (c *Consumer) handle(ctx context.Context, raw amqp.Delivery) {
	var env envelope
	if err := json.Unmarshal(raw.Body, &env); err != nil {
		c.logger.Error("malformed message, dead-lettering", "error", err, "body", string(raw.Body))
		_ = raw.Nack(false, false)
		return
	}

	d := &Delivery{
		Message: Message{ID: env.ID, Type: env.Type, Payload: env.Payload, Timestamp: env.Timestamp},
		Raw:     raw,
	}
	logger := c.logger.With("message_id", env.ID, "type", env.Type)
	logger.Debug("message received", "redelivered", raw.Redelivered)

	if err := c.handler(ctx, d); err != nil {
		requeue := !raw.Redelivered && !errors.Is(err, ErrPermanent)
		logger.Error("message handler failed", "requeue", requeue, "error", err)
		_ = d.Nack(requeue)
		return
	}
	_ = d.Ack()
}

// ParsePayload декодирует payload сообщения в T.
func ParsePayload[T any](msg *Message) (T, error) {
	var out T

	data, ok := msg.Payload.(json.RawMessage)
	if !ok {
		var err error
		if data, err = json.Marshal(msg.Payload); err != nil {
			return out, fmt.Errorf("marshal payload: %w", err)
		}
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("unmarshal payload: %w", err)
	}
	return out, nil
}
