package engine

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// runs создаёт run'ы с заданными статусами в указанном порядке.
func runs(statuses ...domain.RunStatus) []*domain.Run {
	out := make([]*domain.Run, len(statuses))
	for i, s := range statuses {
		out[i] = &domain.Run{ID: uuid.New(), Status: s}
	}
	return out
}

func edge(from, to *domain.Run) domain.RunEdge {
	return domain.RunEdge{UpstreamID: from.ID, DownstreamID: to.ID, Kind: domain.EdgeAction}
}

func TestBuildGraph_SimpleChain(t *testing.T) {
	r := runs(domain.StatusCreated, domain.StatusCreated, domain.StatusCreated)
	a, b, c := r[0], r[1], r[2]

	g, err := BuildGraph(r, []domain.RunEdge{edge(a, b), edge(b, c)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if g.Size() != 3 {
		t.Errorf("expected 3 nodes, got %d", g.Size())
	}

	// Проверяем корневые узлы
	if len(g.Roots) != 1 || g.Roots[0].ID != a.ID {
		t.Fatalf("expected single root A, got %d roots", len(g.Roots))
	}

	// Проверяем зависимости
	nodeC := g.Get(c.ID)
	if len(nodeC.Upstream) != 1 || nodeC.Upstream[0].ID != b.ID {
		t.Error("node C should depend on B")
	}
}

func TestBuildGraph_Diamond(t *testing.T) {
	// A → B → D
	// A → C → D
	r := runs(domain.StatusCreated, domain.StatusCreated, domain.StatusCreated, domain.StatusCreated)
	a, b, c, d := r[0], r[1], r[2], r[3]

	g, err := BuildGraph(r, []domain.RunEdge{edge(a, b), edge(a, c), edge(b, d), edge(c, d)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if g.Get(a.ID).InDegree != 0 {
		t.Error("A should have inDegree 0")
	}
	if g.Get(d.ID).InDegree != 2 {
		t.Error("D should have inDegree 2")
	}

	// Порядок: A до B и C, B и C до D
	positions := make(map[uuid.UUID]int)
	for i, node := range g.Order {
		positions[node.ID] = i
	}
	if positions[a.ID] > positions[b.ID] || positions[a.ID] > positions[c.ID] {
		t.Error("A should come before B and C")
	}
	if positions[b.ID] > positions[d.ID] || positions[c.ID] > positions[d.ID] {
		t.Error("B and C should come before D")
	}

	adj := g.Adjacency()
	if len(adj[a.ID]) != 2 {
		t.Errorf("A should have 2 downstream runs, got %d", len(adj[a.ID]))
	}
}

func TestBuildGraph_DuplicateEdge(t *testing.T) {
	r := runs(domain.StatusCreated, domain.StatusCreated)

	g, err := BuildGraph(r, []domain.RunEdge{edge(r[0], r[1]), edge(r[0], r[1])})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Get(r[1].ID).InDegree != 1 {
		t.Error("duplicate edge must not increase inDegree")
	}
}

func TestBuildGraph_CyclicDependency(t *testing.T) {
	r := runs(domain.StatusCreated, domain.StatusCreated, domain.StatusCreated)
	a, b, c := r[0], r[1], r[2]

	_, err := BuildGraph(r, []domain.RunEdge{edge(c, a), edge(a, b), edge(b, c)})
	if !errors.Is(err, ErrCyclicDependency) {
		t.Errorf("expected ErrCyclicDependency, got %v", err)
	}
}

func TestBuildGraph_InvalidEdges(t *testing.T) {
	r := runs(domain.StatusCreated)
	outsider := &domain.Run{ID: uuid.New()}

	_, err := BuildGraph(r, []domain.RunEdge{edge(outsider, r[0])})
	if !errors.Is(err, ErrMissingDependency) {
		t.Errorf("expected ErrMissingDependency, got %v", err)
	}

	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.RunID != r[0].ID.String() {
		t.Errorf("expected ValidationError for run %s, got %v", r[0].ID, err)
	}

	_, err = BuildGraph(r, []domain.RunEdge{edge(r[0], r[0])})
	if !errors.Is(err, ErrSelfDependency) {
		t.Errorf("expected ErrSelfDependency, got %v", err)
	}
}

func TestGraph_Ready(t *testing.T) {
	r := runs(domain.StatusCreated, domain.StatusCreated, domain.StatusCreated, domain.StatusCreated)
	a, b, c, d := r[0], r[1], r[2], r[3]
	edges := []domain.RunEdge{edge(a, c), edge(a, d), edge(b, d)}

	g, _ := BuildGraph(r, edges)

	// Изначально готовы A и B (без зависимостей)
	ready := g.Ready()
	if len(ready) != 2 || ready[0].ID != a.ID || ready[1].ID != b.ID {
		t.Fatalf("A and B should be ready initially, got %d nodes", len(ready))
	}

	// A выполняется — готов только B
	a.Status = domain.StatusRunning
	g, _ = BuildGraph(r, edges)
	ready = g.Ready()
	if len(ready) != 1 || ready[0].ID != b.ID {
		t.Error("only B should be ready while A is running")
	}
	if g.Active() != 1 {
		t.Errorf("expected 1 active node, got %d", g.Active())
	}

	// A завершился — готовы B и C, D ждёт B
	a.Status = domain.StatusSucceeded
	g, _ = BuildGraph(r, edges)
	readyIDs := make(map[uuid.UUID]bool)
	for _, node := range g.Ready() {
		readyIDs[node.ID] = true
	}
	if !readyIDs[b.ID] || !readyIDs[c.ID] {
		t.Error("B and C should be ready after A completes")
	}
	if readyIDs[d.ID] {
		t.Error("D should not be ready (depends on B)")
	}
}

func TestGraph_Blocked(t *testing.T) {
	r := runs(domain.StatusFailed, domain.StatusCreated, domain.StatusCreated)
	a, b, c := r[0], r[1], r[2]

	// C срабатывает и на провал A
	onFailure := edge(a, c)
	onFailure.Statuses = []domain.RunStatus{domain.StatusFailed}

	g, err := BuildGraph(r, []domain.RunEdge{edge(a, b), onFailure})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	blocked := g.Blocked()
	if len(blocked) != 1 || blocked[0].ID != b.ID {
		t.Fatalf("expected only B blocked, got %d nodes", len(blocked))
	}

	ready := g.Ready()
	if len(ready) != 1 || ready[0].ID != c.ID {
		t.Error("C should be ready: its edge triggers on failure")
	}

	if !g.AnyFailed() {
		t.Error("graph should report a failed node")
	}
}

func TestGraph_IsComplete(t *testing.T) {
	r := runs(domain.StatusSucceeded, domain.StatusRunning)

	g, _ := BuildGraph(r, nil)
	if g.IsComplete() {
		t.Error("should not be complete with a running node")
	}
	if g.Finished() != 1 {
		t.Errorf("expected 1 finished node, got %d", g.Finished())
	}

	r[1].Status = domain.StatusSkipped
	g, _ = BuildGraph(r, nil)
	if !g.IsComplete() {
		t.Error("should be complete with all nodes done")
	}
}
