package engine

import (
	"slices"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// waitingStatuses — член pipeline ещё не отправлен на исполнение.
var waitingStatuses = map[domain.RunStatus]bool{
	domain.StatusCreated:    true,
	domain.StatusResuming:   true,
	domain.StatusOnSchedule: true,
	domain.StatusRetrying:   true,
}

// Node — узел графа pipeline (один run).
type Node struct {
	// ID — идентификатор run.
	ID uuid.UUID

	// Run — снимок run на момент построения графа.
	Run *domain.Run

	// InDegree — количество входящих рёбер.
	InDegree int

	// Upstream — узлы, от которых зависит этот узел.
	Upstream []*Node

	// Downstream — узлы, которые зависят от этого узла.
	Downstream []*Node

	// triggers — статусы upstream, при которых ребро срабатывает (upstreamID → statuses).
	// Пусто — ребро срабатывает при успешном завершении upstream.
	triggers map[uuid.UUID][]domain.RunStatus
}

// Status возвращает статус run узла.
func (n *Node) Status() domain.RunStatus {
	if n.Run == nil {
		return domain.StatusUnknown
	}
	return n.Run.Status
}

// IsWaiting — run ещё не отправлен на исполнение.
func (n *Node) IsWaiting() bool {
	return waitingStatuses[n.Status()]
}

// satisfied проверяет, сработало ли ребро от upstream.
func (n *Node) satisfied(up *Node) bool {
	if statuses := n.triggers[up.ID]; len(statuses) > 0 {
		return slices.Contains(statuses, up.Status())
	}
	return up.Status().IsSuccessful()
}

// Graph — DAG членов pipeline.
type Graph struct {
	// Nodes — все узлы графа (runID → Node).
	Nodes map[uuid.UUID]*Node

	// Roots — узлы без зависимостей, в порядке входного списка run'ов.
	Roots []*Node

	// Order — топологически отсортированный список узлов.
	Order []*Node
}

// BuildGraph строит граф по членам pipeline и рёбрам между ними.
//
// Порядок runs определяет порядок корней и, как следствие, Order.
// Ребро на run вне списка — ValidationError с ErrMissingDependency.
func BuildGraph(runs []*domain.Run, edges []domain.RunEdge) (*Graph, error) {
	g := &Graph{
		Nodes: make(map[uuid.UUID]*Node, len(runs)),
	}

	ordered := make([]*Node, 0, len(runs))
	for _, run := range runs {
		if run == nil {
			continue
		}
		if _, exists := g.Nodes[run.ID]; exists {
			continue
		}
		node := &Node{
			ID:       run.ID,
			Run:      run,
			triggers: make(map[uuid.UUID][]domain.RunStatus),
		}
		g.Nodes[run.ID] = node
		ordered = append(ordered, node)
	}

	for _, edge := range edges {
		if edge.UpstreamID == edge.DownstreamID {
			return nil, NewValidationError(edge.DownstreamID.String(), "upstream",
				"run depends on itself", ErrSelfDependency)
		}
		from, ok := g.Nodes[edge.UpstreamID]
		if !ok {
			return nil, NewValidationError(edge.DownstreamID.String(), "upstream",
				"depends on unknown run: "+edge.UpstreamID.String(), ErrMissingDependency)
		}
		to, ok := g.Nodes[edge.DownstreamID]
		if !ok {
			return nil, NewValidationError(edge.UpstreamID.String(), "downstream",
				"unknown downstream run: "+edge.DownstreamID.String(), ErrMissingDependency)
		}
		g.addEdge(from, to, edge.Statuses)
	}

	for _, node := range ordered {
		if node.InDegree == 0 {
			g.Roots = append(g.Roots, node)
		}
	}

	order, err := g.topologicalSort()
	if err != nil {
		return nil, err
	}
	g.Order = order

	return g, nil
}

// addEdge добавляет ребро. Дубликаты не увеличивают InDegree.
func (g *Graph) addEdge(from, to *Node, statuses []domain.RunStatus) {
	if len(statuses) > 0 {
		to.triggers[from.ID] = append(to.triggers[from.ID], statuses...)
	}
	for _, up := range to.Upstream {
		if up.ID == from.ID {
			return
		}
	}
	from.Downstream = append(from.Downstream, to)
	to.Upstream = append(to.Upstream, from)
	to.InDegree++
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Возвращает ErrCyclicDependency, если обнаружен цикл.
func (g *Graph) topologicalSort() ([]*Node, error) {
	inDegree := make(map[uuid.UUID]int, len(g.Nodes))
	for id, node := range g.Nodes {
		inDegree[id] = node.InDegree
	}

	queue := slices.Clone(g.Roots)
	order := make([]*Node, 0, len(g.Nodes))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, down := range node.Downstream {
			inDegree[down.ID]--
			if inDegree[down.ID] == 0 {
				queue = append(queue, down)
			}
		}
	}

	if len(order) != len(g.Nodes) {
		return nil, ErrCyclicDependency
	}

	return order, nil
}

// Get возвращает узел по ID.
func (g *Graph) Get(id uuid.UUID) *Node {
	return g.Nodes[id]
}

// Size возвращает количество узлов.
func (g *Graph) Size() int {
	return len(g.Nodes)
}

// Ready возвращает ожидающие узлы, у которых сработали все входящие рёбра.
// Порядок — топологический.
func (g *Graph) Ready() []*Node {
	ready := make([]*Node, 0)
	for _, node := range g.Order {
		if !node.IsWaiting() {
			continue
		}
		ok := true
		for _, up := range node.Upstream {
			if !node.satisfied(up) {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, node)
		}
	}
	return ready
}

// Blocked возвращает ожидающие узлы, которые уже никогда не станут готовыми:
// хотя бы один upstream завершился, а его ребро не сработало.
func (g *Graph) Blocked() []*Node {
	blocked := make([]*Node, 0)
	for _, node := range g.Order {
		if !node.IsWaiting() {
			continue
		}
		for _, up := range node.Upstream {
			if up.Status().IsDone() && !node.satisfied(up) {
				blocked = append(blocked, node)
				break
			}
		}
	}
	return blocked
}

// Active возвращает количество отправленных, но не завершённых узлов.
func (g *Graph) Active() int {
	n := 0
	for _, node := range g.Nodes {
		if !node.IsWaiting() && !node.Status().IsDone() {
			n++
		}
	}
	return n
}

// Finished возвращает количество завершённых узлов.
func (g *Graph) Finished() int {
	n := 0
	for _, node := range g.Nodes {
		if node.Status().IsDone() {
			n++
		}
	}
	return n
}

// IsComplete — все узлы в финальном статусе.
func (g *Graph) IsComplete() bool {
	for _, node := range g.Nodes {
		if !node.Status().IsDone() {
			return false
		}
	}
	return true
}

// AnyFailed — хотя бы один узел завершился неуспешно.
func (g *Graph) AnyFailed() bool {
	for _, node := range g.Nodes {
		if node.Status().IsFailed() {
			return true
		}
	}
	return false
}

// Adjacency возвращает карту смежности runID → downstream runIDs.
func (g *Graph) Adjacency() map[uuid.UUID][]uuid.UUID {
	adj := make(map[uuid.UUID][]uuid.UUID, len(g.Nodes))
	for id, node := range g.Nodes {
		downs := make([]uuid.UUID, 0, len(node.Downstream))
		for _, d := range node.Downstream {
			downs = append(downs, d.ID)
		}
		adj[id] = downs
	}
	return adj
}
