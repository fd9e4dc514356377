package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/domain"
)

// ArtifactRepo — Postgres-реализация ArtifactStore.
type ArtifactRepo struct {
	pool *pgxpool.Pool
}

// NewArtifactRepo создаёт новый ArtifactRepo.
func NewArtifactRepo(pool *pgxpool.Pool) *ArtifactRepo {
	return &ArtifactRepo{pool: pool}
}

var _ ArtifactStore = (*ArtifactRepo)(nil)

const artifactColumns = `id, name, kind, path, state, summary, created_at, updated_at`

// FindByKeys возвращает артефакты по ключам (name, state).
func (r *ArtifactRepo) FindByKeys(ctx context.Context, keys []domain.ArtifactKey) ([]*domain.Artifact, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	names := make([]string, len(keys))
	states := make([]uuid.UUID, len(keys))
	for i, k := range keys {
		names[i] = k.Name
		states[i] = k.State
	}

	query := `
		SELECT ` + artifactColumns + `
		FROM artifacts
		WHERE (name, state) IN (SELECT * FROM unnest($1::text[], $2::uuid[]))
	`
	return r.queryArtifacts(ctx, "find artifacts", query, names, states)
}

// Create вставляет артефакт.
func (r *ArtifactRepo) Create(ctx context.Context, a *domain.Artifact) error {
	summary, err := json.Marshal(a.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	query := `
		INSERT INTO artifacts (name, kind, path, state, summary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err = r.pool.QueryRow(ctx, query, a.Name, a.Kind, a.Path, a.State, summary, a.CreatedAt, a.UpdatedAt).Scan(&a.ID)
	return mapError("insert artifact", err)
}

// Update обновляет kind/path/summary артефакта.
func (r *ArtifactRepo) Update(ctx context.Context, a *domain.Artifact) error {
	summary, err := json.Marshal(a.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	a.UpdatedAt = time.Now().UTC()

	query := `UPDATE artifacts SET kind = $2, path = $3, summary = $4, updated_at = $5 WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, a.ID, a.Kind, a.Path, summary, a.UpdatedAt)
	if err != nil {
		return mapError("update artifact", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListLineage возвращает связи run с артефактами.
func (r *ArtifactRepo) ListLineage(ctx context.Context, runID uuid.UUID) ([]domain.ArtifactLineage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT run_id, artifact_id, is_input FROM artifact_lineage WHERE run_id = $1`, runID)
	if err != nil {
		return nil, mapError("list lineage", err)
	}
	defer rows.Close()

	var lineage []domain.ArtifactLineage
	for rows.Next() {
		var l domain.ArtifactLineage
		if err := rows.Scan(&l.RunID, &l.ArtifactID, &l.IsInput); err != nil {
			return nil, fmt.Errorf("scan lineage: %w", err)
		}
		lineage = append(lineage, l)
	}
	return lineage, rows.Err()
}

// CreateLineage вставляет связи, пропуская существующие.
func (r *ArtifactRepo) CreateLineage(ctx context.Context, lineage []domain.ArtifactLineage) error {
	if len(lineage) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, l := range lineage {
		batch.Queue(`
			INSERT INTO artifact_lineage (run_id, artifact_id, is_input)
			VALUES ($1, $2, $3)
			ON CONFLICT (run_id, artifact_id, is_input) DO NOTHING
		`, l.RunID, l.ArtifactID, l.IsInput)
	}
	return mapError("insert lineage", r.pool.SendBatch(ctx, batch).Close())
}

// ListOutputs возвращает выходные артефакты run.
func (r *ArtifactRepo) ListOutputs(ctx context.Context, runID uuid.UUID) ([]*domain.Artifact, error) {
	query := `
		SELECT a.id, a.name, a.kind, a.path, a.state, a.summary, a.created_at, a.updated_at
		FROM artifacts a
		JOIN artifact_lineage l ON l.artifact_id = a.id
		WHERE l.run_id = $1 AND l.is_input = false
		ORDER BY a.id
	`
	return r.queryArtifacts(ctx, "list outputs", query, runID)
}

func (r *ArtifactRepo) queryArtifacts(ctx context.Context, op, query string, args ...any) ([]*domain.Artifact, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()

	var artifacts []*domain.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

func scanArtifact(row pgx.Row) (*domain.Artifact, error) {
	var a domain.Artifact
	var summary []byte
	var path *string

	err := row.Scan(&a.ID, &a.Name, &a.Kind, &path, &a.State, &summary, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan artifact: %w", err)
	}
	if path != nil {
		a.Path = *path
	}
	if summary != nil {
		if err := json.Unmarshal(summary, &a.Summary); err != nil {
			return nil, fmt.Errorf("unmarshal summary: %w", err)
		}
	}
	return &a, nil
}
