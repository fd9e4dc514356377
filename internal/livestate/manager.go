// Package livestate — каскадное архивирование, восстановление и удаление run'ов.
//
// Архивирование и удаление распространяются на всех потомков по ссылкам
// pipeline/controller: незавершённые потомки переводятся в STOPPING и получают
// тот же live state. Окончательное удаление строк — отдельный шаг ConfirmDeletion,
// который вызывают после того, как кластер подтвердил остановку.
package livestate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/lifecycle"
	"github.com/shaiso/Conveyor/internal/repo"
)

// Config — конфигурация Manager.
type Config struct {
	Runs   repo.RunStore
	Logger *slog.Logger
}

// Manager управляет live state run'ов.
type Manager struct {
	runs   repo.RunStore
	logger *slog.Logger
	now    func() time.Time
}

// New создаёт Manager.
func New(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		runs:   cfg.Runs,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Result — итог каскадной операции.
type Result struct {
	// Affected — run и все его потомки.
	Affected []uuid.UUID

	// Stopping — run'ы, переведённые в STOPPING именно этой операцией.
	// Вызывающий код ставит для управляемых из них задачу Stop.
	// Повторный каскад по тому же дереву возвращает пустой список.
	Stopping []*domain.Run
}

// Archive архивирует run вместе с потомками.
func (m *Manager) Archive(ctx context.Context, runID uuid.UUID) (*Result, error) {
	return m.cascade(ctx, runID, domain.LiveStateArchived, domain.ReasonParentArchived)
}

// Delete помечает run и потомков как удаляемые.
func (m *Manager) Delete(ctx context.Context, runID uuid.UUID) (*Result, error) {
	return m.cascade(ctx, runID, domain.LiveStateDeletionProgressing, domain.ReasonParentDeleted)
}

// Restore возвращает архивированный run и его архивированных потомков в LIVE.
// Статусы не меняются.
func (m *Manager) Restore(ctx context.Context, runID uuid.UUID) (*Result, error) {
	tree, err := m.collect(ctx, runID)
	if err != nil {
		return nil, err
	}
	if tree[0].LiveState == domain.LiveStateDeletionProgressing {
		return nil, ErrDeletionInProgress
	}

	ids := make([]uuid.UUID, 0, len(tree))
	for _, run := range tree {
		if run.LiveState == domain.LiveStateArchived {
			ids = append(ids, run.ID)
		}
	}

	if err := m.runs.UpdateLiveState(ctx, ids, domain.LiveStateLive, m.now()); err != nil {
		return nil, fmt.Errorf("restore live state: %w", err)
	}

	m.logger.Info("run restored", "run_id", runID, "affected", len(ids))
	return &Result{Affected: ids}, nil
}

// ConfirmDeletion окончательно удаляет run и потомков, помеченных на удаление.
// Потомки удаляются раньше родителей.
func (m *Manager) ConfirmDeletion(ctx context.Context, runID uuid.UUID) (*Result, error) {
	tree, err := m.collect(ctx, runID)
	if err != nil {
		return nil, err
	}
	if tree[0].LiveState != domain.LiveStateDeletionProgressing {
		return nil, ErrNotMarkedForDeletion
	}

	deleted := make([]uuid.UUID, 0, len(tree))
	for i := len(tree) - 1; i >= 0; i-- {
		run := tree[i]
		if run.LiveState != domain.LiveStateDeletionProgressing {
			continue
		}
		if err := m.runs.Delete(ctx, run.ID); err != nil && !errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("delete run %s: %w", run.ID, err)
		}
		deleted = append(deleted, run.ID)
	}

	m.logger.Info("run deletion confirmed", "run_id", runID, "deleted", len(deleted))
	return &Result{Affected: deleted}, nil
}

// cascade переводит run и потомков в state, незавершённые — в STOPPING.
func (m *Manager) cascade(ctx context.Context, runID uuid.UUID, state domain.LiveState, reason string) (*Result, error) {
	tree, err := m.collect(ctx, runID)
	if err != nil {
		return nil, err
	}
	if tree[0].LiveState == domain.LiveStateDeletionProgressing && state != domain.LiveStateDeletionProgressing {
		return nil, ErrDeletionInProgress
	}

	targets := make([]*domain.Run, 0, len(tree))
	ids := make([]uuid.UUID, 0, len(tree))
	for _, run := range tree {
		// Удаление необратимо: такие потомки не архивируются
		if run.LiveState == domain.LiveStateDeletionProgressing && state != domain.LiveStateDeletionProgressing {
			continue
		}
		targets = append(targets, run)
		ids = append(ids, run.ID)
	}

	if err := m.runs.UpdateLiveState(ctx, ids, state, m.now()); err != nil {
		return nil, fmt.Errorf("update live state: %w", err)
	}

	cond := domain.NewCondition(domain.StatusStopping, reason,
		fmt.Sprintf("run %s moved to %s", runID, state))
	// Уже останавливаемые run'ы не возвращаются: Stop для них запрошен раньше.
	fresh := make([]*domain.Run, 0, len(targets))
	for _, run := range targets {
		if run.Status != domain.StatusStopping {
			fresh = append(fresh, run)
		}
	}
	stopping := lifecycle.ApplyConditionBulk(fresh, cond)
	if err := m.runs.SaveStatuses(ctx, stopping); err != nil {
		return nil, fmt.Errorf("save stopping statuses: %w", err)
	}

	for _, run := range targets {
		run.LiveState = state
	}

	m.logger.Info("live state cascaded",
		"run_id", runID,
		"live_state", state,
		"affected", len(ids),
		"stopping", len(stopping),
	)
	return &Result{Affected: ids, Stopping: stopping}, nil
}

// collect возвращает run и всех его потомков (обход в ширину, корень первым).
func (m *Manager) collect(ctx context.Context, runID uuid.UUID) ([]*domain.Run, error) {
	root, err := m.runs.Get(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	tree := []*domain.Run{root}
	seen := map[uuid.UUID]bool{root.ID: true}

	for i := 0; i < len(tree); i++ {
		children, err := m.runs.ListChildren(ctx, tree[i].ID)
		if err != nil {
			return nil, fmt.Errorf("list children of %s: %w", tree[i].ID, err)
		}
		for _, child := range children {
			if seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			tree = append(tree, child)
		}
	}
	return tree, nil
}
