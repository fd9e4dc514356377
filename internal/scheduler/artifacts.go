package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
)

// SetArtifacts сверяет сообщённые артефакты с хранилищем по ключу (name, state):
// создаёт отсутствующие, обновляет изменившиеся и дописывает lineage.
// Конфликт параллельной записи повторяется с фиксированной паузой.
func (m *Manager) SetArtifacts(ctx context.Context, runID uuid.UUID, inputs []domain.ArtifactInput) bool {
	return m.operation(ctx, "set_artifacts", runID, func(ctx context.Context, logger *slog.Logger) bool {
		run, ok := m.load(ctx, logger, runID)
		if !ok {
			return false
		}
		if len(inputs) == 0 {
			return true
		}

		err := repo.WithRetry(ctx, m.artifactAttempts, m.artifactDelay, func() error {
			return m.reconcileArtifacts(ctx, run, inputs)
		})
		if err != nil {
			logger.Error("failed to set artifacts", "count", len(inputs), "error", err)
			return false
		}
		logger.Debug("artifacts set", "count", len(inputs))
		return true
	})
}

type lineageKey struct {
	key     domain.ArtifactKey
	isInput bool
}

func (m *Manager) reconcileArtifacts(ctx context.Context, run *domain.Run, inputs []domain.ArtifactInput) error {
	wanted := make(map[domain.ArtifactKey]domain.ArtifactInput, len(inputs))
	keys := make([]domain.ArtifactKey, 0, len(inputs))
	links := make([]lineageKey, 0, len(inputs))
	seen := make(map[lineageKey]bool, len(inputs))

	for _, in := range inputs {
		key := domain.ArtifactKey{Name: in.Name, State: artifactState(run, in)}
		if _, ok := wanted[key]; !ok {
			keys = append(keys, key)
		}
		wanted[key] = in

		lk := lineageKey{key: key, isInput: in.IsInput}
		if !seen[lk] {
			seen[lk] = true
			links = append(links, lk)
		}
	}

	found, err := m.artifacts.FindByKeys(ctx, keys)
	if err != nil {
		return fmt.Errorf("find artifacts: %w", err)
	}
	existing := make(map[domain.ArtifactKey]*domain.Artifact, len(found))
	for _, a := range found {
		existing[a.Key()] = a
	}

	for _, key := range keys {
		in := wanted[key]
		a, ok := existing[key]
		if !ok {
			a = &domain.Artifact{
				Name:    key.Name,
				State:   key.State,
				Kind:    in.Kind,
				Path:    in.Path,
				Summary: in.Summary,
			}
			if err := m.artifacts.Create(ctx, a); err != nil {
				return fmt.Errorf("create artifact %s: %w", key.Name, err)
			}
			existing[key] = a
			continue
		}
		if !artifactChanged(a, in) {
			continue
		}
		a.Kind = in.Kind
		a.Path = in.Path
		a.Summary = in.Summary
		if err := m.artifacts.Update(ctx, a); err != nil {
			return fmt.Errorf("update artifact %s: %w", key.Name, err)
		}
	}

	lineage := make([]domain.ArtifactLineage, 0, len(links))
	for _, lk := range links {
		lineage = append(lineage, domain.ArtifactLineage{
			RunID:      run.ID,
			ArtifactID: existing[lk.key].ID,
			IsInput:    lk.isInput,
		})
	}
	if err := m.artifacts.CreateLineage(ctx, lineage); err != nil {
		return fmt.Errorf("create lineage: %w", err)
	}
	return nil
}

// artifactState — state по умолчанию: для входов детерминированный UUIDv5
// от (name, path) в namespace проекта, для выходов ID run.
func artifactState(run *domain.Run, in domain.ArtifactInput) uuid.UUID {
	if in.State != nil {
		return *in.State
	}
	if in.IsInput {
		return uuid.NewSHA1(run.ProjectID, []byte(in.Name+in.Path))
	}
	return run.ID
}

func artifactChanged(a *domain.Artifact, in domain.ArtifactInput) bool {
	if a.Kind != in.Kind || a.Path != in.Path {
		return true
	}
	if len(a.Summary) == 0 && len(in.Summary) == 0 {
		return false
	}
	before, err1 := json.Marshal(a.Summary)
	after, err2 := json.Marshal(in.Summary)
	if err1 != nil || err2 != nil {
		return true
	}
	return !bytes.Equal(before, after)
}
