package events

import (
	"context"
	"log/slog"

	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Config — конфигурация Auditor.
type Config struct {
	// Durable — внешний sink (RabbitMQ или Redis). nil — не настроен.
	Durable Sink

	// Local — in-process sink (обычно Outbox). nil — не настроен.
	Local Sink

	Logger *slog.Logger
}

// Auditor строит события и раздаёт их sink'ам.
type Auditor struct {
	durable Sink
	local   Sink
	logger  *slog.Logger
}

// NewAuditor создаёт Auditor.
func NewAuditor(cfg Config) *Auditor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		durable: cfg.Durable,
		local:   cfg.Local,
		logger:  logger,
	}
}

// Record строит событие и отправляет его в оба sink'а.
//
// Возвращает только ошибку построения (неизвестный тип, нет атрибута).
// Ошибки sink'ов логируются и учитываются в метриках.
func (a *Auditor) Record(ctx context.Context, t EventType, attrs Attributes, opts ...Option) error {
	e, err := New(t, attrs, opts...)
	if err != nil {
		return err
	}
	a.Emit(ctx, e)
	return nil
}

// Emit отправляет готовое событие в sink'и.
func (a *Auditor) Emit(ctx context.Context, e Event) {
	if a == nil {
		return
	}
	telemetry.EventsRecorded.WithLabelValues(e.Type.String()).Inc()

	e.Dispatched = a.local != nil
	a.deliver(ctx, a.durable, e)
	a.deliver(ctx, a.local, e)
}

// deliver отправляет событие в один sink.
func (a *Auditor) deliver(ctx context.Context, sink Sink, e Event) {
	if sink == nil {
		return
	}
	if err := sink.Publish(ctx, e); err != nil {
		telemetry.SinkFailures.WithLabelValues(sink.Name()).Inc()
		a.logger.Error("failed to deliver event",
			"sink", sink.Name(),
			"event_type", e.Type,
			"event_id", e.ID,
			"run_id", e.Attributes.RunID,
			"error", err,
		)
	}
}
