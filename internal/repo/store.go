package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// RunStore — хранилище run'ов.
type RunStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	Create(ctx context.Context, run *domain.Run) error

	// Save сохраняет содержимое run (pending, content, meta, происхождение,
	// fingerprint). Статус пишется только SaveStatus, live state — UpdateLiveState.
	Save(ctx context.Context, run *domain.Run) error

	// SaveStatus сохраняет только статус, историю условий и производные поля.
	SaveStatus(ctx context.Context, run *domain.Run) error

	// SaveStatuses — то же для набора run'ов одной операцией.
	SaveStatuses(ctx context.Context, runs []*domain.Run) error

	// ListChildren возвращает run'ы, у которых pipeline или controller = parentID.
	ListChildren(ctx context.Context, parentID uuid.UUID) ([]*domain.Run, error)

	// UpdateLiveState массово выставляет live_state. at пишется в archived_at
	// (ARCHIVED) или deleted_at (DELETION_PROGRESSING); для LIVE оба сбрасываются.
	UpdateLiveState(ctx context.Context, ids []uuid.UUID, state domain.LiveState, at time.Time) error

	// ListByOriginal возвращает клоны указанного вида.
	ListByOriginal(ctx context.Context, originalID uuid.UUID, kind domain.CloningKind) ([]*domain.Run, error)

	// FindCached ищет последний успешный run проекта с тем же fingerprint'ом.
	// since ограничивает давность завершения (TTL кэша), nil — без ограничения.
	FindCached(ctx context.Context, projectID uuid.UUID, fingerprint string, exclude uuid.UUID, since *time.Time) (*domain.Run, error)

	// ListActivePipelines возвращает pipeline-run'ы в рабочих статусах.
	ListActivePipelines(ctx context.Context, limit int) ([]*domain.Run, error)

	Delete(ctx context.Context, id uuid.UUID) error
}

// EdgeStore — хранилище рёбер между run'ами.
type EdgeStore interface {
	Create(ctx context.Context, edge *domain.RunEdge) error

	// ListByPipeline возвращает рёбра, оба конца которых принадлежат pipeline.
	ListByPipeline(ctx context.Context, pipelineID uuid.UUID) ([]domain.RunEdge, error)

	ListUpstream(ctx context.Context, runID uuid.UUID) ([]domain.RunEdge, error)
	ListDownstream(ctx context.Context, runID uuid.UUID) ([]domain.RunEdge, error)
}

// ArtifactStore — хранилище артефактов и lineage.
type ArtifactStore interface {
	FindByKeys(ctx context.Context, keys []domain.ArtifactKey) ([]*domain.Artifact, error)

	// Create вставляет артефакт и заполняет ID. Дубликат ключа — ErrConflict.
	Create(ctx context.Context, artifact *domain.Artifact) error
	Update(ctx context.Context, artifact *domain.Artifact) error

	ListLineage(ctx context.Context, runID uuid.UUID) ([]domain.ArtifactLineage, error)

	// CreateLineage вставляет связи, уже существующие пропускаются.
	CreateLineage(ctx context.Context, lineage []domain.ArtifactLineage) error

	// ListOutputs возвращает выходные артефакты run.
	ListOutputs(ctx context.Context, runID uuid.UUID) ([]*domain.Artifact, error)
}
