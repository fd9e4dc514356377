package domain

import "github.com/google/uuid"

// EdgeKind — тип связи между двумя run'ами.
type EdgeKind string

const (
	EdgeAction EdgeKind = "action"
	EdgeEvent  EdgeKind = "event"
	EdgeBuild  EdgeKind = "build"
	EdgeManual EdgeKind = "manual"
)

// RunEdge — направленное ребро upstream → downstream.
//
// Набор рёбер между членами pipeline образует DAG, который строит engine.
type RunEdge struct {
	UpstreamID   uuid.UUID `json:"upstream_id"`
	DownstreamID uuid.UUID `json:"downstream_id"`
	Kind         EdgeKind  `json:"kind"`

	// Values — снимок значений, переданных по ребру (для lineage-запросов).
	Values map[string]any `json:"values,omitempty"`

	// Statuses — статусы upstream, при которых ребро срабатывает.
	Statuses []RunStatus `json:"statuses,omitempty"`
}
