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

// RunRepo — Postgres-реализация RunStore.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

var _ RunStore = (*RunRepo)(nil)

const runColumns = `
	id, project_id, name, kind, status, status_conditions, pending,
	live_state, archived_at, deleted_at, managed_by, raw_content, content,
	meta_info, pipeline_id, controller_id, original_id, cloning_kind,
	component_state, started_at, finished_at, wait_time_ms, duration_ms,
	created_at, updated_at`

// Create создаёт новый run.
func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	conditions, meta, err := marshalRunJSON(run)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	if run.Status == "" {
		run.Status = domain.StatusCreated
	}
	if run.LiveState == "" {
		run.LiveState = domain.LiveStateLive
	}

	query := `INSERT INTO runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.ProjectID,
		run.Name,
		run.Kind,
		run.Status,
		conditions,
		nullString(string(run.Pending)),
		run.LiveState,
		run.ArchivedAt,
		run.DeletedAt,
		run.ManagedBy,
		run.RawContent,
		run.Content,
		meta,
		nullUUID(run.PipelineID),
		nullUUID(run.ControllerID),
		nullUUID(run.OriginalID),
		nullString(string(run.CloningKind)),
		nullString(run.ComponentState),
		run.StartedAt,
		run.FinishedAt,
		run.WaitTime.Milliseconds(),
		run.Duration.Milliseconds(),
		run.CreatedAt,
		run.UpdatedAt,
	)
	return mapError("insert run", err)
}

// Get возвращает run по ID.
func (r *RunRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`
	return scanRun(r.pool.QueryRow(ctx, query, id))
}

// Save сохраняет содержимое run. Статус и live state не трогает.
func (r *RunRepo) Save(ctx context.Context, run *domain.Run) error {
	_, meta, err := marshalRunJSON(run)
	if err != nil {
		return err
	}
	run.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE runs
		SET pending = $2, content = $3, meta_info = $4, original_id = $5,
		    cloning_kind = $6, component_state = $7, updated_at = $8
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		run.ID,
		nullString(string(run.Pending)),
		run.Content,
		meta,
		nullUUID(run.OriginalID),
		nullString(string(run.CloningKind)),
		nullString(run.ComponentState),
		run.UpdatedAt,
	)
	if err != nil {
		return mapError("update run", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const updateStatusQuery = `
	UPDATE runs
	SET status = $2, status_conditions = $3, started_at = $4, finished_at = $5,
	    wait_time_ms = $6, duration_ms = $7, updated_at = $8
	WHERE id = $1
`

func statusArgs(run *domain.Run) ([]any, error) {
	conditions, err := json.Marshal(run.StatusConditions)
	if err != nil {
		return nil, fmt.Errorf("marshal status conditions: %w", err)
	}
	return []any{
		run.ID,
		run.Status,
		conditions,
		run.StartedAt,
		run.FinishedAt,
		run.WaitTime.Milliseconds(),
		run.Duration.Milliseconds(),
		time.Now().UTC(),
	}, nil
}

// SaveStatus сохраняет статус и производные поля.
func (r *RunRepo) SaveStatus(ctx context.Context, run *domain.Run) error {
	args, err := statusArgs(run)
	if err != nil {
		return err
	}
	result, err := r.pool.Exec(ctx, updateStatusQuery, args...)
	if err != nil {
		return mapError("update run status", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveStatuses сохраняет статусы набора run'ов одним batch'ем в транзакции.
func (r *RunRepo) SaveStatuses(ctx context.Context, runs []*domain.Run) error {
	if len(runs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, run := range runs {
		args, err := statusArgs(run)
		if err != nil {
			return err
		}
		batch.Queue(updateStatusQuery, args...)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return mapError("update run statuses", err)
	}
	return mapError("commit run statuses", tx.Commit(ctx))
}

// ListChildren возвращает дочерние run'ы pipeline/controller.
func (r *RunRepo) ListChildren(ctx context.Context, parentID uuid.UUID) ([]*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs
		WHERE pipeline_id = $1 OR controller_id = $1
		ORDER BY created_at ASC`
	return r.queryRuns(ctx, "list children", query, parentID)
}

// UpdateLiveState массово обновляет live_state.
func (r *RunRepo) UpdateLiveState(ctx context.Context, ids []uuid.UUID, state domain.LiveState, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	var query string
	switch state {
	case domain.LiveStateArchived:
		query = `UPDATE runs SET live_state = $2, archived_at = $3, updated_at = $3 WHERE id = ANY($1)`
	case domain.LiveStateDeletionProgressing:
		query = `UPDATE runs SET live_state = $2, deleted_at = $3, updated_at = $3 WHERE id = ANY($1)`
	default:
		query = `UPDATE runs SET live_state = $2, archived_at = NULL, deleted_at = NULL, updated_at = $3 WHERE id = ANY($1)`
	}

	_, err := r.pool.Exec(ctx, query, ids, state, at)
	return mapError("update live state", err)
}

// ListByOriginal возвращает клоны run.
func (r *RunRepo) ListByOriginal(ctx context.Context, originalID uuid.UUID, kind domain.CloningKind) ([]*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs
		WHERE original_id = $1 AND cloning_kind = $2
		ORDER BY created_at ASC`
	return r.queryRuns(ctx, "list clones", query, originalID, kind)
}

// FindCached ищет успешный run с тем же fingerprint'ом.
func (r *RunRepo) FindCached(ctx context.Context, projectID uuid.UUID, fingerprint string, exclude uuid.UUID, since *time.Time) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs
		WHERE project_id = $1
		  AND component_state = $2
		  AND id <> $3
		  AND status = 'succeeded'
		  AND live_state = 'live'
		  AND ($4::timestamptz IS NULL OR finished_at >= $4)
		ORDER BY finished_at DESC NULLS LAST, created_at DESC
		LIMIT 1`
	return scanRun(r.pool.QueryRow(ctx, query, projectID, fingerprint, exclude, since))
}

// ListActivePipelines возвращает pipeline-run'ы, которые ещё в работе.
func (r *RunRepo) ListActivePipelines(ctx context.Context, limit int) ([]*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs
		WHERE kind IN ('dag', 'matrix', 'schedule')
		  AND status IN ('queued', 'scheduled', 'starting', 'running', 'processing')
		  AND live_state = 'live'
		ORDER BY created_at ASC
		LIMIT $1`
	return r.queryRuns(ctx, "list active pipelines", query, limit)
}

// Delete удаляет run.
func (r *RunRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM runs WHERE id = $1`, id)
	if err != nil {
		return mapError("delete run", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func (r *RunRepo) queryRuns(ctx context.Context, op, query string, args ...any) ([]*domain.Run, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func marshalRunJSON(run *domain.Run) (conditions, meta []byte, err error) {
	conditions, err = json.Marshal(run.StatusConditions)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal status conditions: %w", err)
	}
	meta, err = json.Marshal(run.MetaInfo)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal meta info: %w", err)
	}
	return conditions, meta, nil
}

// scanRun сканирует одну строку в Run. pgx.Rows тоже реализует pgx.Row.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var conditionsJSON, metaJSON []byte
	var pending, cloningKind, componentState *string
	var waitMS, durationMS int64

	err := row.Scan(
		&run.ID,
		&run.ProjectID,
		&run.Name,
		&run.Kind,
		&run.Status,
		&conditionsJSON,
		&pending,
		&run.LiveState,
		&run.ArchivedAt,
		&run.DeletedAt,
		&run.ManagedBy,
		&run.RawContent,
		&run.Content,
		&metaJSON,
		&run.PipelineID,
		&run.ControllerID,
		&run.OriginalID,
		&cloningKind,
		&componentState,
		&run.StartedAt,
		&run.FinishedAt,
		&waitMS,
		&durationMS,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if conditionsJSON != nil {
		if err := json.Unmarshal(conditionsJSON, &run.StatusConditions); err != nil {
			return nil, fmt.Errorf("unmarshal status conditions: %w", err)
		}
	}
	if metaJSON != nil {
		if err := json.Unmarshal(metaJSON, &run.MetaInfo); err != nil {
			return nil, fmt.Errorf("unmarshal meta info: %w", err)
		}
	}

	if pending != nil {
		run.Pending = domain.PendingState(*pending)
	}
	if cloningKind != nil {
		run.CloningKind = domain.CloningKind(*cloningKind)
	}
	if componentState != nil {
		run.ComponentState = *componentState
	}
	run.WaitTime = time.Duration(waitMS) * time.Millisecond
	run.Duration = time.Duration(durationMS) * time.Millisecond

	return &run, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullUUID возвращает nil для пустого UUID.
func nullUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return id
}
