package scheduler

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/events"
)

// Built — сборка образа для run завершена. Продвижение выполняет approval/prepare.
func (m *Manager) Built(ctx context.Context, runID uuid.UUID) bool {
	return m.operation(ctx, "built", runID, func(ctx context.Context, logger *slog.Logger) bool {
		logger.Debug("build finished")
		return true
	})
}

// NotifyDone публикует run.done_notified и продвигает родительский pipeline.
func (m *Manager) NotifyDone(ctx context.Context, runID uuid.UUID) bool {
	return m.operation(ctx, "notify_done", runID, func(ctx context.Context, logger *slog.Logger) bool {
		run, ok := m.load(ctx, logger, runID)
		if !ok {
			return false
		}
		if !run.IsDone() {
			logger.Debug("run is not done", "status", run.Status)
			return false
		}

		m.record(ctx, events.RunDoneNotified, events.AttributesFromRun(run), run)

		if run.PipelineID != nil {
			m.ReconcilePipeline(ctx, *run.PipelineID)
		}
		if run.ControllerID != nil && (run.PipelineID == nil || *run.ControllerID != *run.PipelineID) {
			m.ReconcilePipeline(ctx, *run.ControllerID)
		}
		return true
	})
}

// ReconcilePipeline продвигает pipeline по его графу:
// ожидающие дети с неуспешными upstream — UPSTREAM_FAILED, готовые дети
// запускаются в пределах concurrency и max_budget, завершённый граф
// переводит pipeline в SUCCEEDED или FAILED.
func (m *Manager) ReconcilePipeline(ctx context.Context, pipelineID uuid.UUID) bool {
	return m.operation(ctx, "reconcile", pipelineID, func(ctx context.Context, logger *slog.Logger) bool {
		pipeline, ok := m.load(ctx, logger, pipelineID)
		if !ok {
			return false
		}
		if !pipeline.Kind.IsPipeline() || pipeline.LiveState != domain.LiveStateLive || !pipeline.Status.IsRunning() {
			logger.Debug("pipeline is not active",
				"kind", pipeline.Kind, "status", pipeline.Status, "live_state", pipeline.LiveState)
			return false
		}

		graph, err := m.resolver.BuildGraph(ctx, pipelineID)
		if err != nil {
			m.fail(ctx, pipeline, domain.ReasonInvalidGraph, err, false)
			return false
		}

		for blocked := graph.Blocked(); len(blocked) > 0; blocked = graph.Blocked() {
			for _, node := range blocked {
				m.SetStatus(ctx, node.Run, domain.NewCondition(domain.StatusUpstreamFailed, domain.ReasonUpstreamFailed, ""), false)
				if !node.Run.IsDone() {
					// Переход отклонён: не зацикливаемся на том же узле.
					return false
				}
			}
		}

		var budget *int
		if b := pipeline.MaxBudget(); b != nil {
			remaining := *b - graph.Finished()
			budget = &remaining
		}

		// Бюджет израсходован и никто не работает: ожидающие уже не запустятся.
		if budget != nil && *budget <= 0 && graph.Active() == 0 {
			for _, node := range graph.Order {
				if node.IsWaiting() {
					m.SetStatus(ctx, node.Run, domain.NewCondition(domain.StatusSkipped, domain.ReasonBudgetExhausted,
						"pipeline max_budget reached"), false)
				}
			}
		}

		if graph.IsComplete() {
			status := domain.StatusSucceeded
			if graph.AnyFailed() {
				status = domain.StatusFailed
			}
			return m.SetStatus(ctx, pipeline, domain.NewCondition(status, domain.ReasonPipelineDone, ""), false)
		}

		if pipeline.Status == domain.StatusQueued {
			m.SetStatus(ctx, pipeline, domain.NewCondition(domain.StatusRunning, domain.ReasonPipelineRunning, ""), false)
		}

		startable := engine.ComputeStartable(pipeline.Concurrency(), graph.Active(), budget)

		ready := graph.Ready()
		n := min(startable, len(ready))
		for _, node := range ready[:n] {
			m.Prepare(ctx, node.ID, true)
		}

		logger.Debug("pipeline reconciled",
			"ready", len(ready), "started", n, "active", graph.Active(), "finished", graph.Finished())
		return true
	})
}
