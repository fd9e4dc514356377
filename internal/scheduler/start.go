package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/lifecycle"
	"github.com/shaiso/Conveyor/internal/tasks"
)

// Start ставит скомпилированный run в очередь исполнения.
//
// job/service при включённом кластере отправляются через Converter и Cluster;
// любая ошибка — FAILED с текстом ошибки. Pipeline запускает первых детей
// через ReconcilePipeline.
func (m *Manager) Start(ctx context.Context, runID uuid.UUID) bool {
	return m.operation(ctx, "start", runID, func(ctx context.Context, logger *slog.Logger) bool {
		run, ok := m.load(ctx, logger, runID)
		if !ok {
			return false
		}
		if !run.IsManaged() || run.Status != domain.StatusCompiled || run.Pending != domain.PendingNone ||
			run.LiveState != domain.LiveStateLive {
			logger.Debug("run cannot be started",
				"status", run.Status, "managed_by", run.ManagedBy, "pending", run.Pending, "live_state", run.LiveState)
			return false
		}

		if !m.SetStatus(ctx, run, domain.NewCondition(domain.StatusQueued, domain.ReasonQueued, ""), false) {
			return false
		}

		switch {
		case run.Kind.IsPipeline():
			m.ReconcilePipeline(ctx, run.ID)
			return true
		case run.Kind.IsClusterWorkload() && m.inCluster:
			if err := m.submit(ctx, run); err != nil {
				m.fail(ctx, run, domain.ReasonSubmitError, err, false)
				return false
			}
			logger.Info("run submitted to cluster", "kind", run.Kind)
			return true
		default:
			return true
		}
	})
}

func (m *Manager) submit(ctx context.Context, run *domain.Run) error {
	op, err := domain.ParseOperation(run.Content)
	if err != nil {
		return err
	}
	manifest, err := m.converter.Convert(run, op)
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	return m.cluster.Submit(ctx, manifest)
}

// Stop останавливает run.
//
// Для job/service: необязательный Clean, затем Stop в кластере; ошибки
// кластера дают false. updateStatus — перевод в STOPPED. Для pipeline
// все незавершённые дети переводятся в STOPPING одной записью, и на каждого
// управляемого ребёнка ставится задача Stop.
func (m *Manager) Stop(ctx context.Context, runID uuid.UUID, updateStatus, clean bool) bool {
	return m.operation(ctx, "stop", runID, func(ctx context.Context, logger *slog.Logger) bool {
		run, ok := m.load(ctx, logger, runID)
		if !ok {
			return false
		}
		if !run.IsManaged() || !run.Status.IsStoppable() {
			logger.Debug("run cannot be stopped", "status", run.Status, "managed_by", run.ManagedBy)
			return false
		}

		if run.Kind.IsPipeline() {
			if !m.stopChildren(ctx, logger, run) {
				return false
			}
		} else if m.inCluster && run.Kind.IsClusterWorkload() {
			if clean {
				if err := m.cluster.Clean(ctx, run.ID, run.Kind); err != nil {
					logger.Error("failed to clean cluster resources", "error", err)
					return false
				}
			}
			if err := m.cluster.Stop(ctx, run.ID, run.Kind); err != nil {
				logger.Error("failed to stop cluster workload", "error", err)
				return false
			}
		}

		if updateStatus {
			return m.SetStatus(ctx, run, domain.NewCondition(domain.StatusStopped, domain.ReasonStopped, ""), false)
		}
		return true
	})
}

func (m *Manager) stopChildren(ctx context.Context, logger *slog.Logger, pipeline *domain.Run) bool {
	children, err := m.runs.ListChildren(ctx, pipeline.ID)
	if err != nil {
		logger.Error("failed to list children", "error", err)
		return false
	}

	changed := lifecycle.ApplyConditionBulk(children,
		domain.NewCondition(domain.StatusStopping, domain.ReasonStopRequested, "pipeline "+pipeline.ID.String()+" stopped"))
	if len(changed) == 0 {
		return true
	}
	if err := m.runs.SaveStatuses(ctx, changed); err != nil {
		logger.Error("failed to save children statuses", "error", err)
		return false
	}

	for _, child := range changed {
		if !child.IsManaged() {
			continue
		}
		m.enqueue(ctx, tasks.Stop, tasks.Payload{RunID: child.ID, UpdateStatus: true}, tasks.Options{})
	}
	logger.Info("pipeline children stopping", "count", len(changed))
	return true
}
