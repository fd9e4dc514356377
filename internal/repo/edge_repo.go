package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/domain"
)

// EdgeRepo — Postgres-реализация EdgeStore.
type EdgeRepo struct {
	pool *pgxpool.Pool
}

// NewEdgeRepo создаёт новый EdgeRepo.
func NewEdgeRepo(pool *pgxpool.Pool) *EdgeRepo {
	return &EdgeRepo{pool: pool}
}

var _ EdgeStore = (*EdgeRepo)(nil)

// Create создаёт ребро. Повторное ребро с тем же (upstream, downstream) — ErrConflict.
func (r *EdgeRepo) Create(ctx context.Context, edge *domain.RunEdge) error {
	values, err := json.Marshal(edge.Values)
	if err != nil {
		return fmt.Errorf("marshal edge values: %w", err)
	}
	statuses, err := json.Marshal(edge.Statuses)
	if err != nil {
		return fmt.Errorf("marshal edge statuses: %w", err)
	}

	query := `
		INSERT INTO run_edges (upstream_id, downstream_id, kind, values, statuses)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = r.pool.Exec(ctx, query, edge.UpstreamID, edge.DownstreamID, edge.Kind, values, statuses)
	return mapError("insert edge", err)
}

// ListByPipeline возвращает рёбра между членами pipeline.
func (r *EdgeRepo) ListByPipeline(ctx context.Context, pipelineID uuid.UUID) ([]domain.RunEdge, error) {
	query := `
		SELECT e.upstream_id, e.downstream_id, e.kind, e.values, e.statuses
		FROM run_edges e
		JOIN runs up ON up.id = e.upstream_id
		JOIN runs down ON down.id = e.downstream_id
		WHERE (up.pipeline_id = $1 OR up.controller_id = $1)
		  AND (down.pipeline_id = $1 OR down.controller_id = $1)
	`
	return r.queryEdges(ctx, "list pipeline edges", query, pipelineID)
}

// ListUpstream возвращает входящие рёбра run.
func (r *EdgeRepo) ListUpstream(ctx context.Context, runID uuid.UUID) ([]domain.RunEdge, error) {
	query := `
		SELECT upstream_id, downstream_id, kind, values, statuses
		FROM run_edges WHERE downstream_id = $1
	`
	return r.queryEdges(ctx, "list upstream edges", query, runID)
}

// ListDownstream возвращает исходящие рёбра run.
func (r *EdgeRepo) ListDownstream(ctx context.Context, runID uuid.UUID) ([]domain.RunEdge, error) {
	query := `
		SELECT upstream_id, downstream_id, kind, values, statuses
		FROM run_edges WHERE upstream_id = $1
	`
	return r.queryEdges(ctx, "list downstream edges", query, runID)
}

func (r *EdgeRepo) queryEdges(ctx context.Context, op, query string, args ...any) ([]domain.RunEdge, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()

	var edges []domain.RunEdge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

func scanEdge(row pgx.Row) (domain.RunEdge, error) {
	var edge domain.RunEdge
	var values, statuses []byte

	if err := row.Scan(&edge.UpstreamID, &edge.DownstreamID, &edge.Kind, &values, &statuses); err != nil {
		return edge, fmt.Errorf("scan edge: %w", err)
	}
	if values != nil {
		if err := json.Unmarshal(values, &edge.Values); err != nil {
			return edge, fmt.Errorf("unmarshal edge values: %w", err)
		}
	}
	if statuses != nil {
		if err := json.Unmarshal(statuses, &edge.Statuses); err != nil {
			return edge, fmt.Errorf("unmarshal edge statuses: %w", err)
		}
	}
	return edge, nil
}
