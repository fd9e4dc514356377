package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Queue — постановка задач.
type Queue interface {
	Enqueue(ctx context.Context, name Name, payload Payload, opts Options) error
}

// Publisher — публикация задач в брокер (реализуется mq.Publisher).
type Publisher interface {
	PublishTask(ctx context.Context, name string, payload any, delay time.Duration, priority uint8) error
}

// DispatcherConfig — конфигурация Dispatcher.
type DispatcherConfig struct {
	// Router — обработчики для inline-исполнения.
	Router *Router

	// Publisher — брокер. nil — все задачи выполняются inline.
	Publisher Publisher

	// SchedulerEnabled — false: задачи выполняются inline, очередь не используется.
	SchedulerEnabled bool

	Logger *slog.Logger
}

// Dispatcher — Queue поверх Router и брокера.
type Dispatcher struct {
	router    *Router
	publisher Publisher
	enabled   bool
	logger    *slog.Logger
}

// NewDispatcher создаёт Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	router := cfg.Router
	if router == nil {
		router = NewRouter()
	}
	return &Dispatcher{
		router:    router,
		publisher: cfg.Publisher,
		enabled:   cfg.SchedulerEnabled,
		logger:    logger,
	}
}

// Router возвращает реестр обработчиков.
func (d *Dispatcher) Router() *Router {
	return d.router
}

// Enqueue ставит задачу.
//
// Inline (в текущей горутине), если задача eager, планировщик выключен
// или брокер не настроен. Delay при inline-исполнении игнорируется.
func (d *Dispatcher) Enqueue(ctx context.Context, name Name, payload Payload, opts Options) error {
	logger := telemetry.WithTask(d.logger, name.String()).With("run_id", payload.RunID)

	if opts.Eager || !d.enabled || d.publisher == nil {
		telemetry.TasksEnqueued.WithLabelValues(name.String(), "inline").Inc()
		logger.Debug("running task inline")
		return d.router.Handle(ctx, name, payload)
	}

	mode := "queued"
	if opts.Delay > 0 {
		mode = "delayed"
	}

	if err := d.publisher.PublishTask(ctx, name.String(), payload, opts.Delay, opts.Priority); err != nil {
		return fmt.Errorf("enqueue %s: %w", name, err)
	}

	telemetry.TasksEnqueued.WithLabelValues(name.String(), mode).Inc()
	logger.Debug("task enqueued", "delay", opts.Delay, "priority", opts.Priority)
	return nil
}
