package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/cache"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/lifecycle"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/tasks"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Prepare компилирует спецификацию run и переводит его в COMPILED.
//
// Ошибка компиляции — FAILED с сообщением компилятора. Совпадение fingerprint'а
// с успешным run проекта — SKIPPED (cache hit). Pending-гейт останавливает
// продвижение после COMPILED. eager — Start вызывается сразу, иначе ставится задача.
func (m *Manager) Prepare(ctx context.Context, runID uuid.UUID, eager bool) bool {
	return m.operation(ctx, "prepare", runID, func(ctx context.Context, logger *slog.Logger) bool {
		run, ok := m.load(ctx, logger, runID)
		if !ok {
			return false
		}
		if !preparable(run) {
			logger.Debug("run is not compilable", "status", run.Status, "live_state", run.LiveState)
			return false
		}

		compiled, compileErr := m.compiler.Compile(ctx, run.RawContent)

		// Компиляция может идти долго: статус и live state перечитываются,
		// изменения, сделанные за это время, не перезаписываются.
		fresh, ok := m.load(ctx, logger, runID)
		if !ok {
			return false
		}
		if fresh.Status != run.Status || !preparable(fresh) {
			logger.Info("run changed during compilation",
				"status", fresh.Status, "live_state", fresh.LiveState)
			return false
		}
		run = fresh

		if compileErr != nil {
			m.SetStatus(ctx, run, domain.NewCondition(domain.StatusFailed, domain.ReasonCompilationError, compileErr.Error()), true)
			return false
		}

		op := &compiled.Operation
		run.Content = compiled.Content
		if op.Concurrency != nil {
			run.SetMeta(domain.MetaConcurrency, *op.Concurrency)
		}
		if op.MaxBudget != nil {
			run.SetMeta(domain.MetaMaxBudget, *op.MaxBudget)
		}

		original := m.cacheLookup(ctx, logger, run, op)

		if err := m.runs.Save(ctx, run); err != nil {
			logger.Error("failed to save compiled run", "error", err)
			return false
		}
		if !m.SetStatus(ctx, run, domain.NewCondition(domain.StatusCompiled, domain.ReasonCompiled, ""), true) {
			return false
		}

		if original != nil {
			return m.applyCacheHit(ctx, logger, run, original)
		}

		if run.Pending != domain.PendingNone {
			logger.Info("run is pending", "pending", run.Pending)
			return true
		}

		if eager {
			return m.Start(ctx, run.ID)
		}
		return m.enqueue(ctx, tasks.Start, tasks.Payload{RunID: run.ID}, tasks.Options{})
	})
}

// preparable — run живой и может перейти в COMPILED.
// STOPPING компилируемый, но в COMPILED уже не переходит.
func preparable(run *domain.Run) bool {
	return run.LiveState == domain.LiveStateLive &&
		run.Status.IsCompilable() &&
		lifecycle.CanTransition(run.Status, domain.StatusCompiled, true)
}

// cacheLookup считает fingerprint и ищет успешный run с тем же fingerprint'ом.
// При попадании помечает run как cache-клон и возвращает оригинал.
func (m *Manager) cacheLookup(ctx context.Context, logger *slog.Logger, run *domain.Run, op *domain.OperationSpec) *domain.Run {
	if op.Cache == nil || op.Cache.Disable {
		return nil
	}

	fingerprint, ok := cache.ComputeFingerprint(
		cache.ConfigFromSpec(op.Cache), cache.SectionsFromSpec(op), run.ProjectID, op.Component)
	if !ok {
		return nil
	}
	run.ComponentState = fingerprint

	var since *time.Time
	if op.Cache.TTL > 0 {
		t := m.now().Add(-time.Duration(op.Cache.TTL) * time.Second)
		since = &t
	}

	original, err := m.runs.FindCached(ctx, run.ProjectID, fingerprint, run.ID, since)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			logger.Warn("cache lookup failed", "error", err)
		}
		telemetry.CacheLookups.WithLabelValues("miss").Inc()
		return nil
	}

	telemetry.CacheLookups.WithLabelValues("hit").Inc()
	logger.Info("cache hit", "original_id", original.ID, "fingerprint", fingerprint)

	id := original.ID
	run.OriginalID = &id
	run.CloningKind = domain.CloningCache
	return original
}

// applyCacheHit связывает выходы оригинала с run и переводит его в SKIPPED.
func (m *Manager) applyCacheHit(ctx context.Context, logger *slog.Logger, run, original *domain.Run) bool {
	outputs, err := m.artifacts.ListOutputs(ctx, original.ID)
	if err != nil {
		logger.Error("failed to list cached outputs", "original_id", original.ID, "error", err)
		return false
	}

	if len(outputs) > 0 {
		lineage := make([]domain.ArtifactLineage, 0, len(outputs))
		for _, a := range outputs {
			lineage = append(lineage, domain.ArtifactLineage{RunID: run.ID, ArtifactID: a.ID})
		}
		if err := m.artifacts.CreateLineage(ctx, lineage); err != nil {
			logger.Error("failed to link cached outputs", "original_id", original.ID, "error", err)
			return false
		}
	}

	return m.SetStatus(ctx, run, domain.NewCondition(domain.StatusSkipped, domain.ReasonCacheHit,
		"outputs reused from run "+original.ID.String()), false)
}
