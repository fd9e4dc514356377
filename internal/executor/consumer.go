package executor

import (
	"context"
	"fmt"

	"github.com/shaiso/Conveyor/internal/events"
	"github.com/shaiso/Conveyor/internal/mq"
)

// HandleDelivery — mq.Handler для очереди events.executor.
//
// Событие, уже отданное локальному executor'у записавшего процесса
// (Dispatched), подтверждается без обработки. Ошибка обработчика
// возвращается consumer'у: сообщение доставляется повторно один раз.
func (e *Executor) HandleDelivery(ctx context.Context, d *mq.Delivery) error {
	ev, err := mq.ParsePayload[events.Event](&d.Message)
	if err != nil {
		e.logger.Error("failed to parse event", "message_id", d.Message.ID, "error", err)
		return fmt.Errorf("%w: %w", mq.ErrPermanent, err)
	}
	if ev.Dispatched {
		e.logger.Debug("event already dispatched locally", "event_id", ev.ID, "event_type", ev.Type)
		return nil
	}
	return e.dispatch(ctx, ev)
}

// Consume читает события из брокера до отмены ctx.
func (e *Executor) Consume(ctx context.Context, conn *mq.Connection) error {
	consumer := mq.NewConsumer(conn, e.logger, mq.ConsumerConfig{
		Queue:   string(mq.QueueEventsExecutor),
		Handler: e.HandleDelivery,
	})
	e.logger.Info("executor consuming broker events", "queue", mq.QueueEventsExecutor)
	return consumer.Start(ctx)
}
