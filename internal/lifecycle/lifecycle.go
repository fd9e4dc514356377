// Package lifecycle — чистые функции переходов статусов run.
//
// Никакого I/O: функции меняют только переданный *domain.Run.
// Сохранение и публикация событий — забота вызывающего кода.
package lifecycle

import (
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// startedStatuses — статусы, с которых отсчитывается StartedAt.
var startedStatuses = map[domain.RunStatus]bool{
	domain.StatusStarting:   true,
	domain.StatusRunning:    true,
	domain.StatusProcessing: true,
}

// CanTransition проверяет, принимается ли условие cond для run в статусе from.
//
// Правила:
//   - CREATED никогда не записывается (это неявное начальное значение);
//   - из финального статуса выходим только с force;
//   - STOPPING сменяется только финальным статусом (force этого не отменяет).
func CanTransition(from, to domain.RunStatus, force bool) bool {
	if to == domain.StatusCreated {
		return false
	}
	if from.IsDone() && !force {
		return false
	}
	if from == domain.StatusStopping && !to.IsDone() {
		return false
	}
	return true
}

// ApplyCondition применяет условие к run.
//
// Возвращает предыдущий статус и changed=true, если run был изменён
// (условие дописано или заменено). Статус мог не поменяться, если заменено
// условие того же типа, поэтому событие о новом статусе вызывающий код
// публикует только при previous != run.Status.
func ApplyCondition(run *domain.Run, cond domain.StatusCondition, force bool) (domain.RunStatus, bool) {
	previous := run.Status
	if !CanTransition(previous, cond.Type, force) {
		return previous, false
	}

	cond = normalize(cond)

	if last := run.LastCondition(); last != nil && last.Type == cond.Type {
		// Тот же тип — заменяем, момент перехода сохраняем.
		cond.LastTransitionTime = last.LastTransitionTime
		run.StatusConditions[len(run.StatusConditions)-1] = cond
	} else {
		run.StatusConditions = append(run.StatusConditions, cond)
	}

	run.Status = cond.Type
	run.UpdatedAt = cond.LastUpdateTime
	Recompute(run)

	return previous, true
}

// ApplyConditionBulk применяет одно условие к набору run'ов без force.
// Возвращает только изменённые run'ы. События по каждому run не публикуются.
func ApplyConditionBulk(runs []*domain.Run, cond domain.StatusCondition) []*domain.Run {
	changed := make([]*domain.Run, 0, len(runs))
	for _, run := range runs {
		if run == nil {
			continue
		}
		if _, ok := ApplyCondition(run, cond, false); ok {
			changed = append(changed, run)
		}
	}
	return changed
}

// Recompute пересчитывает StartedAt, FinishedAt, WaitTime и Duration из истории условий.
func Recompute(run *domain.Run) {
	var startedAt, finishedAt *time.Time

	for i := range run.StatusConditions {
		c := &run.StatusConditions[i]
		if startedAt == nil && startedStatuses[c.Type] {
			t := c.LastTransitionTime
			startedAt = &t
		}
	}

	if run.Status.IsDone() {
		if last := run.LastCondition(); last != nil {
			t := last.LastTransitionTime
			finishedAt = &t
		}
		if startedAt == nil && finishedAt != nil {
			// Run завершился, не успев стартовать (ошибка компиляции, кэш, остановка в очереди).
			t := *finishedAt
			if !run.CreatedAt.IsZero() && run.CreatedAt.Before(t) {
				t = run.CreatedAt
			}
			startedAt = &t
		}
	}

	run.StartedAt = startedAt
	run.FinishedAt = finishedAt
	run.WaitTime = 0
	run.Duration = 0

	if startedAt != nil && !run.CreatedAt.IsZero() && startedAt.After(run.CreatedAt) {
		run.WaitTime = startedAt.Sub(run.CreatedAt)
	}
	if startedAt != nil && finishedAt != nil && finishedAt.After(*startedAt) {
		run.Duration = finishedAt.Sub(*startedAt)
	}
}

// normalize заполняет пустые поля условия.
func normalize(cond domain.StatusCondition) domain.StatusCondition {
	now := time.Now().UTC()
	if cond.Status == "" {
		cond.Status = domain.ConditionTrue
	}
	if cond.LastUpdateTime.IsZero() {
		cond.LastUpdateTime = now
	}
	if cond.LastTransitionTime.IsZero() {
		cond.LastTransitionTime = cond.LastUpdateTime
	}
	return cond
}
