package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// RunReader — то, что Resolver читает о run'ах.
type RunReader interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	ListChildren(ctx context.Context, parentID uuid.UUID) ([]*domain.Run, error)
}

// EdgeReader — то, что Resolver читает о рёбрах.
type EdgeReader interface {
	ListByPipeline(ctx context.Context, pipelineID uuid.UUID) ([]domain.RunEdge, error)
	ListUpstream(ctx context.Context, runID uuid.UUID) ([]domain.RunEdge, error)
	ListDownstream(ctx context.Context, runID uuid.UUID) ([]domain.RunEdge, error)
}

// RunRef — краткая ссылка на соседний run.
type RunRef struct {
	ID     uuid.UUID        `json:"id"`
	Name   string           `json:"name"`
	Status domain.RunStatus `json:"status"`
	Edge   domain.EdgeKind  `json:"edge"`
}

// Resolver строит граф pipeline поверх хранилища.
type Resolver struct {
	runs  RunReader
	edges EdgeReader
}

// NewResolver создаёт Resolver.
func NewResolver(runs RunReader, edges EdgeReader) *Resolver {
	return &Resolver{runs: runs, edges: edges}
}

// Upstream возвращает run'ы, от которых зависит runID.
// Если pipelineID задан, учитываются только члены этого pipeline.
func (r *Resolver) Upstream(ctx context.Context, runID, pipelineID uuid.UUID) ([]RunRef, error) {
	edges, err := r.edges.ListUpstream(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list upstream: %w", err)
	}
	return r.refs(ctx, edges, pipelineID, func(e domain.RunEdge) uuid.UUID { return e.UpstreamID })
}

// Downstream возвращает run'ы, которые зависят от runID.
func (r *Resolver) Downstream(ctx context.Context, runID, pipelineID uuid.UUID) ([]RunRef, error) {
	edges, err := r.edges.ListDownstream(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list downstream: %w", err)
	}
	return r.refs(ctx, edges, pipelineID, func(e domain.RunEdge) uuid.UUID { return e.DownstreamID })
}

func (r *Resolver) refs(ctx context.Context, edges []domain.RunEdge, pipelineID uuid.UUID, end func(domain.RunEdge) uuid.UUID) ([]RunRef, error) {
	refs := make([]RunRef, 0, len(edges))
	for _, e := range edges {
		run, err := r.runs.Get(ctx, end(e))
		if err != nil {
			return nil, fmt.Errorf("get run %s: %w", end(e), err)
		}
		if pipelineID != uuid.Nil && !memberOf(run, pipelineID) {
			continue
		}
		refs = append(refs, RunRef{ID: run.ID, Name: run.Name, Status: run.Status, Edge: e.Kind})
	}
	return refs, nil
}

// BuildGraph строит граф членов pipeline.
func (r *Resolver) BuildGraph(ctx context.Context, pipelineID uuid.UUID) (*Graph, error) {
	children, err := r.runs.ListChildren(ctx, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	edges, err := r.edges.ListByPipeline(ctx, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("list pipeline edges: %w", err)
	}
	return BuildGraph(children, edges)
}

// IsPipelineDone возвращает true, если ни один член pipeline не в рабочем статусе.
func (r *Resolver) IsPipelineDone(ctx context.Context, pipelineID uuid.UUID) (bool, error) {
	children, err := r.runs.ListChildren(ctx, pipelineID)
	if err != nil {
		return false, fmt.Errorf("list children: %w", err)
	}
	for _, c := range children {
		if !c.Status.IsDone() {
			return false, nil
		}
	}
	return true, nil
}

func memberOf(run *domain.Run, pipelineID uuid.UUID) bool {
	return (run.PipelineID != nil && *run.PipelineID == pipelineID) ||
		(run.ControllerID != nil && *run.ControllerID == pipelineID)
}
