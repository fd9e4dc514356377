package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/tasks"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// handleTask разбирает сообщение и передаёт задачу в Router.
//
// Некорректный payload и неизвестная задача — ErrPermanent (сразу в DLQ).
func (w *Worker) handleTask(ctx context.Context, delivery *mq.Delivery) error {
	name := tasks.Name(delivery.Message.Type)
	logger := telemetry.WithTask(w.logger, name.String())

	payload, err := mq.ParsePayload[tasks.Payload](&delivery.Message)
	if err != nil {
		telemetry.TasksProcessed.WithLabelValues(name.String(), "invalid").Inc()
		logger.Error("failed to parse task payload", "message_id", delivery.Message.ID, "error", err)
		return fmt.Errorf("%w: %w", mq.ErrPermanent, err)
	}

	logger = logger.With("run_id", payload.RunID)
	ctx = telemetry.WithLogger(ctx, logger)

	if err := w.router.Handle(ctx, name, payload); err != nil {
		if errors.Is(err, tasks.ErrUnknownTask) || errors.Is(err, tasks.ErrInvalidPayload) {
			telemetry.TasksProcessed.WithLabelValues(name.String(), "invalid").Inc()
			logger.Warn("task rejected", "error", err)
			return fmt.Errorf("%w: %w", mq.ErrPermanent, err)
		}
		telemetry.TasksProcessed.WithLabelValues(name.String(), "failed").Inc()
		return err
	}

	telemetry.TasksProcessed.WithLabelValues(name.String(), "ok").Inc()
	logger.Debug("task processed")
	return nil
}
