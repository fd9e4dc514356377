package events

import (
	"context"
	"log/slog"

	"github.com/shaiso/Conveyor/internal/telemetry"
)

// DefaultOutboxSize — размер буфера outbox по умолчанию.
const DefaultOutboxSize = 1024

// Handler — обработчик событий из outbox.
type Handler func(ctx context.Context, e Event)

// Outbox — in-process канал событий между Auditor и executor.
//
// Publish никогда не блокирует: при переполненном буфере событие отбрасывается.
type Outbox struct {
	ch     chan Event
	logger *slog.Logger
}

// NewOutbox создаёт Outbox с буфером size.
func NewOutbox(size int, logger *slog.Logger) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Outbox{
		ch:     make(chan Event, size),
		logger: logger,
	}
}

// Name возвращает имя sink'а.
func (o *Outbox) Name() string { return "outbox" }

// Publish кладёт событие в буфер. При переполнении возвращает ErrOutboxFull.
func (o *Outbox) Publish(_ context.Context, e Event) error {
	select {
	case o.ch <- e:
		return nil
	default:
		telemetry.OutboxDropped.Inc()
		o.logger.Warn("outbox full, event dropped",
			"event_type", e.Type,
			"event_id", e.ID,
			"run_id", e.Attributes.RunID,
		)
		return ErrOutboxFull
	}
}

// Len возвращает количество событий в буфере.
func (o *Outbox) Len() int {
	return len(o.ch)
}

// Run читает события и передаёт их handler до отмены ctx.
// После отмены обрабатывает то, что уже лежит в буфере, и возвращает ctx.Err().
func (o *Outbox) Run(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			o.Drain(context.WithoutCancel(ctx), handler)
			return ctx.Err()
		case e := <-o.ch:
			handler(ctx, e)
		}
	}
}

// Drain синхронно обрабатывает события, лежащие в буфере, включая
// добавленные самим handler'ом во время обработки.
func (o *Outbox) Drain(ctx context.Context, handler Handler) {
	for {
		select {
		case e := <-o.ch:
			handler(ctx, e)
		default:
			return
		}
	}
}
