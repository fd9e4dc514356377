package repo

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// MemoryStore — in-memory реализация RunStore, EdgeStore и ArtifactStore.
// Подходит для тестов, sandbox-режима CLI и локальной разработки.
type MemoryStore struct {
	mu        sync.RWMutex
	runs      map[uuid.UUID]*domain.Run
	edges     []domain.RunEdge
	artifacts map[int64]*domain.Artifact
	lineage   map[domain.ArtifactLineage]bool
	nextID    int64
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:      make(map[uuid.UUID]*domain.Run),
		artifacts: make(map[int64]*domain.Artifact),
		lineage:   make(map[domain.ArtifactLineage]bool),
	}
}

var (
	_ RunStore      = (*MemoryStore)(nil)
	_ EdgeStore     = memoryEdges{}
	_ ArtifactStore = memoryArtifacts{}
)

// Runs возвращает хранилище как RunStore.
func (s *MemoryStore) Runs() RunStore { return s }

// Edges возвращает хранилище как EdgeStore.
func (s *MemoryStore) Edges() EdgeStore { return memoryEdges{s} }

// Artifacts возвращает хранилище как ArtifactStore.
func (s *MemoryStore) Artifacts() ArtifactStore { return memoryArtifacts{s} }

// --- RunStore ---

// Get возвращает копию run.
func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRun(run), nil
}

// Create сохраняет новый run.
func (s *MemoryStore) Create(_ context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("insert run: %w", ErrConflict)
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

	s.runs[run.ID] = cloneRun(run)
	return nil
}

// Save сохраняет содержимое run: pending, спецификацию, meta, происхождение
// и fingerprint. Статус и live state не трогает.
func (s *MemoryStore) Save(_ context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.runs[run.ID]
	if !ok {
		return ErrNotFound
	}
	run.UpdatedAt = time.Now().UTC()
	stored.Pending = run.Pending
	stored.Content = run.Content
	stored.MetaInfo = maps.Clone(run.MetaInfo)
	stored.OriginalID = clonePtr(run.OriginalID)
	stored.CloningKind = run.CloningKind
	stored.ComponentState = run.ComponentState
	stored.UpdatedAt = run.UpdatedAt
	return nil
}

// SaveStatus сохраняет статусные поля run.
func (s *MemoryStore) SaveStatus(_ context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveStatusLocked(run)
}

// SaveStatuses сохраняет статусные поля набора run'ов.
func (s *MemoryStore) SaveStatuses(_ context.Context, runs []*domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, run := range runs {
		if _, ok := s.runs[run.ID]; !ok {
			return ErrNotFound
		}
	}
	for _, run := range runs {
		if err := s.saveStatusLocked(run); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) saveStatusLocked(run *domain.Run) error {
	stored, ok := s.runs[run.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Status = run.Status
	stored.StatusConditions = slices.Clone(run.StatusConditions)
	stored.StartedAt = clonePtr(run.StartedAt)
	stored.FinishedAt = clonePtr(run.FinishedAt)
	stored.WaitTime = run.WaitTime
	stored.Duration = run.Duration
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

// ListChildren возвращает дочерние run'ы в порядке создания.
func (s *MemoryStore) ListChildren(_ context.Context, parentID uuid.UUID) ([]*domain.Run, error) {
	return s.filterRuns(func(r *domain.Run) bool {
		return isRef(r.PipelineID, parentID) || isRef(r.ControllerID, parentID)
	}), nil
}

// UpdateLiveState массово обновляет live_state.
func (s *MemoryStore) UpdateLiveState(_ context.Context, ids []uuid.UUID, state domain.LiveState, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		run, ok := s.runs[id]
		if !ok {
			continue
		}
		run.LiveState = state
		switch state {
		case domain.LiveStateArchived:
			run.ArchivedAt = &at
		case domain.LiveStateDeletionProgressing:
			run.DeletedAt = &at
		default:
			run.ArchivedAt, run.DeletedAt = nil, nil
		}
		run.UpdatedAt = at
	}
	return nil
}

// ListByOriginal возвращает клоны run.
func (s *MemoryStore) ListByOriginal(_ context.Context, originalID uuid.UUID, kind domain.CloningKind) ([]*domain.Run, error) {
	return s.filterRuns(func(r *domain.Run) bool {
		return isRef(r.OriginalID, originalID) && r.CloningKind == kind
	}), nil
}

// FindCached ищет последний успешный run с тем же fingerprint'ом.
func (s *MemoryStore) FindCached(_ context.Context, projectID uuid.UUID, fingerprint string, exclude uuid.UUID, since *time.Time) (*domain.Run, error) {
	candidates := s.filterRuns(func(r *domain.Run) bool {
		if r.ProjectID != projectID || r.ComponentState != fingerprint || r.ID == exclude {
			return false
		}
		if r.Status != domain.StatusSucceeded || r.LiveState != domain.LiveStateLive {
			return false
		}
		return since == nil || (r.FinishedAt != nil && !r.FinishedAt.Before(*since))
	})
	if len(candidates) == 0 {
		return nil, ErrNotFound
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return finishedAt(candidates[i]).After(finishedAt(candidates[j]))
	})
	return candidates[0], nil
}

// ListActivePipelines возвращает pipeline-run'ы в рабочих статусах.
func (s *MemoryStore) ListActivePipelines(_ context.Context, limit int) ([]*domain.Run, error) {
	runs := s.filterRuns(func(r *domain.Run) bool {
		return r.Kind.IsPipeline() && r.Status.IsRunning() && r.LiveState == domain.LiveStateLive
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Delete удаляет run вместе с его рёбрами и lineage.
func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[id]; !ok {
		return ErrNotFound
	}
	delete(s.runs, id)
	s.edges = slices.DeleteFunc(s.edges, func(e domain.RunEdge) bool {
		return e.UpstreamID == id || e.DownstreamID == id
	})
	maps.DeleteFunc(s.lineage, func(l domain.ArtifactLineage, _ bool) bool {
		return l.RunID == id
	})
	return nil
}

func (s *MemoryStore) filterRuns(match func(*domain.Run) bool) []*domain.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Run
	for _, run := range s.runs {
		if match(run) {
			out = append(out, cloneRun(run))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// --- EdgeStore ---

// memoryEdges — EdgeStore поверх MemoryStore. Create конфликтует по имени
// с RunStore.Create, поэтому рёбра и артефакты вынесены в обёртки.
type memoryEdges struct{ s *MemoryStore }

func (m memoryEdges) Create(_ context.Context, edge *domain.RunEdge) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.edges {
		if e.UpstreamID == edge.UpstreamID && e.DownstreamID == edge.DownstreamID {
			return fmt.Errorf("insert edge: %w", ErrConflict)
		}
	}
	s.edges = append(s.edges, *edge)
	return nil
}

func (m memoryEdges) ListByPipeline(_ context.Context, pipelineID uuid.UUID) ([]domain.RunEdge, error) {
	s := m.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	member := func(id uuid.UUID) bool {
		r, ok := s.runs[id]
		return ok && (isRef(r.PipelineID, pipelineID) || isRef(r.ControllerID, pipelineID))
	}

	var out []domain.RunEdge
	for _, e := range s.edges {
		if member(e.UpstreamID) && member(e.DownstreamID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m memoryEdges) ListUpstream(_ context.Context, runID uuid.UUID) ([]domain.RunEdge, error) {
	return m.s.filterEdges(func(e domain.RunEdge) bool { return e.DownstreamID == runID }), nil
}

func (m memoryEdges) ListDownstream(_ context.Context, runID uuid.UUID) ([]domain.RunEdge, error) {
	return m.s.filterEdges(func(e domain.RunEdge) bool { return e.UpstreamID == runID }), nil
}

func (s *MemoryStore) filterEdges(match func(domain.RunEdge) bool) []domain.RunEdge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.RunEdge
	for _, e := range s.edges {
		if match(e) {
			out = append(out, e)
		}
	}
	return out
}

// --- ArtifactStore ---

type memoryArtifacts struct{ s *MemoryStore }

func (m memoryArtifacts) FindByKeys(_ context.Context, keys []domain.ArtifactKey) ([]*domain.Artifact, error) {
	s := m.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[domain.ArtifactKey]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
	}

	var out []*domain.Artifact
	for _, id := range s.sortedArtifactIDs() {
		a := s.artifacts[id]
		if wanted[a.Key()] {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m memoryArtifacts) Create(_ context.Context, a *domain.Artifact) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.artifacts {
		if existing.Key() == a.Key() {
			return fmt.Errorf("insert artifact: %w", ErrConflict)
		}
	}

	s.nextID++
	now := time.Now().UTC()
	a.ID = s.nextID
	a.CreatedAt, a.UpdatedAt = now, now
	c := *a
	s.artifacts[a.ID] = &c
	return nil
}

func (m memoryArtifacts) Update(_ context.Context, a *domain.Artifact) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.artifacts[a.ID]
	if !ok {
		return ErrNotFound
	}
	a.UpdatedAt = time.Now().UTC()
	stored.Kind = a.Kind
	stored.Path = a.Path
	stored.Summary = maps.Clone(a.Summary)
	stored.UpdatedAt = a.UpdatedAt
	return nil
}

func (m memoryArtifacts) ListLineage(_ context.Context, runID uuid.UUID) ([]domain.ArtifactLineage, error) {
	s := m.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ArtifactLineage
	for l := range s.lineage {
		if l.RunID == runID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ArtifactID == out[j].ArtifactID {
			return !out[i].IsInput && out[j].IsInput
		}
		return out[i].ArtifactID < out[j].ArtifactID
	})
	return out, nil
}

func (m memoryArtifacts) CreateLineage(_ context.Context, lineage []domain.ArtifactLineage) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range lineage {
		s.lineage[l] = true
	}
	return nil
}

func (m memoryArtifacts) ListOutputs(_ context.Context, runID uuid.UUID) ([]*domain.Artifact, error) {
	s := m.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Artifact
	for _, id := range s.sortedArtifactIDs() {
		if s.lineage[domain.ArtifactLineage{RunID: runID, ArtifactID: id, IsInput: false}] {
			c := *s.artifacts[id]
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *MemoryStore) sortedArtifactIDs() []int64 {
	ids := slices.Collect(maps.Keys(s.artifacts))
	slices.Sort(ids)
	return ids
}

// --- Helpers ---

func cloneRun(r *domain.Run) *domain.Run {
	c := *r
	c.StatusConditions = slices.Clone(r.StatusConditions)
	c.MetaInfo = maps.Clone(r.MetaInfo)
	c.ArchivedAt = clonePtr(r.ArchivedAt)
	c.DeletedAt = clonePtr(r.DeletedAt)
	c.PipelineID = clonePtr(r.PipelineID)
	c.ControllerID = clonePtr(r.ControllerID)
	c.OriginalID = clonePtr(r.OriginalID)
	c.StartedAt = clonePtr(r.StartedAt)
	c.FinishedAt = clonePtr(r.FinishedAt)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func isRef(ref *uuid.UUID, id uuid.UUID) bool {
	return ref != nil && *ref == id
}

func finishedAt(r *domain.Run) time.Time {
	if r.FinishedAt != nil {
		return *r.FinishedAt
	}
	return r.CreatedAt
}
