package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sink — получатель записанных событий.
type Sink interface {
	// Name — имя sink'а для логов и метрик.
	Name() string

	// Publish доставляет событие.
	Publish(ctx context.Context, e Event) error
}

// EventPublisher — публикация событий в брокер (реализуется mq.Publisher).
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, id string, payload any) error
}

// AMQPSink — durable sink поверх RabbitMQ exchange conveyor.events.
type AMQPSink struct {
	publisher EventPublisher
}

// NewAMQPSink создаёт AMQPSink.
func NewAMQPSink(publisher EventPublisher) *AMQPSink {
	return &AMQPSink{publisher: publisher}
}

// Name возвращает имя sink'а.
func (s *AMQPSink) Name() string { return "amqp" }

// Publish публикует событие с routing key = типу события.
func (s *AMQPSink) Publish(ctx context.Context, e Event) error {
	return s.publisher.PublishEvent(ctx, e.Type.String(), e.ID.String(), e)
}

// DefaultStreamMaxLen — приблизительная длина Redis stream событий.
const DefaultStreamMaxLen = 5000

// DefaultStream — имя Redis stream по умолчанию.
const DefaultStream = "conveyor:events"

// RedisSink — durable sink поверх Redis stream (XADD с обрезкой MAXLEN ~).
type RedisSink struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewRedisSink создаёт RedisSink. Пустой stream и maxLen <= 0 — значения по умолчанию.
func NewRedisSink(client redis.Cmdable, stream string, maxLen int64) *RedisSink {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	return &RedisSink{client: client, stream: stream, maxLen: maxLen}
}

// Name возвращает имя sink'а.
func (s *RedisSink) Name() string { return "redis" }

// Publish добавляет событие в stream.
func (s *RedisSink) Publish(ctx context.Context, e Event) error {
	values, err := streamValues(e)
	if err != nil {
		return err
	}

	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// streamValues раскладывает событие в поля записи stream.
func streamValues(e Event) (map[string]any, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]any{
		"id":     e.ID.String(),
		"type":   e.Type.String(),
		"run_id": e.Attributes.RunID.String(),
		"ts":     e.CreatedAt.Format(time.RFC3339Nano),
		"data":   string(data),
	}, nil
}

// NewRedisClient подключается к Redis по URL и проверяет соединение.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}
