package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
// Для задач — имя задачи (scheduler.prepare), для событий — тип события (run.created).
type MessageType string

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// PublishOptions — параметры доставки.
type PublishOptions struct {
	// Priority — приоритет 0..MaxPriority.
	Priority uint8

	// Expiration — TTL сообщения (используется для отложенных задач).
	Expiration time.Duration
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message, opts PublishOptions) error {
	publishing, err := buildPublishing(msg, opts)
	if err != nil {
		return err
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			publishing,
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishTask публикует задачу для scheduler worker.
// С delay > 0 задача уходит в tasks.delayed и вернётся в работу по истечении TTL.
func (p *Publisher) PublishTask(ctx context.Context, name string, payload any, delay time.Duration, priority uint8) error {
	msg := NewMessage(MessageType(name), payload)
	if delay > 0 {
		return p.Publish(ctx, ExchangeTasks, RoutingKeyDelayed, msg, PublishOptions{Priority: priority, Expiration: delay})
	}
	return p.Publish(ctx, ExchangeTasks, RoutingKeyTasks, msg, PublishOptions{Priority: priority})
}

// PublishEvent публикует событие в conveyor.events с ключом = типу события.
func (p *Publisher) PublishEvent(ctx context.Context, eventType string, id string, payload any) error {
	msg := NewMessage(MessageType(eventType), payload)
	if id != "" {
		msg.ID = id
	}
	return p.Publish(ctx, ExchangeEvents, RoutingKey(eventType), msg, PublishOptions{})
}

// buildPublishing сериализует сообщение и заполняет свойства доставки.
func buildPublishing(msg *Message, opts PublishOptions) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal message: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
		MessageId:    msg.ID,
		Type:         string(msg.Type),
		Timestamp:    msg.Timestamp,
		Priority:     min(opts.Priority, MaxPriority),
		Body:         body,
	}
	if opts.Expiration > 0 {
		// Expiration в AMQP — строка с миллисекундами
		publishing.Expiration = strconv.FormatInt(opts.Expiration.Milliseconds(), 10)
	}
	return publishing, nil
}
