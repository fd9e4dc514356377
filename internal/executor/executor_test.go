package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/events"
	"github.com/shaiso/Conveyor/internal/lifecycle"
	"github.com/shaiso/Conveyor/internal/livestate"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/tasks"
)

var projectID = uuid.MustParse("3f4d2a90-8d0e-4c8e-9a51-6b7f2c1d0e11")

type enqueued struct {
	name    tasks.Name
	payload tasks.Payload
	opts    tasks.Options
}

type fakeQueue struct {
	tasks []enqueued
	err   error
}

func (q *fakeQueue) Enqueue(_ context.Context, name tasks.Name, payload tasks.Payload, opts tasks.Options) error {
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, enqueued{name, payload, opts})
	return nil
}

func (q *fakeQueue) names() []tasks.Name {
	out := make([]tasks.Name, 0, len(q.tasks))
	for _, t := range q.tasks {
		out = append(out, t.name)
	}
	return out
}

// statusWriter применяет условие и сохраняет статус без событий.
type statusWriter struct {
	runs repo.RunStore
}

func (w statusWriter) SetStatus(ctx context.Context, run *domain.Run, cond domain.StatusCondition, force bool) bool {
	if _, changed := lifecycle.ApplyCondition(run, cond, force); !changed {
		return false
	}
	return w.runs.SaveStatus(ctx, run) == nil
}

type fixture struct {
	store *repo.MemoryStore
	queue *fakeQueue
	exec  *Executor
}

func newFixture() *fixture {
	store := repo.NewMemoryStore()
	queue := &fakeQueue{}
	return &fixture{
		store: store,
		queue: queue,
		exec: New(Config{
			Runs:      store.Runs(),
			Edges:     store.Edges(),
			Queue:     queue,
			Status:    statusWriter{runs: store.Runs()},
			LiveState: livestate.New(livestate.Config{Runs: store.Runs()}),
		}),
	}
}

func (f *fixture) create(t *testing.T, run *domain.Run) *domain.Run {
	t.Helper()
	run.ID = uuid.New()
	run.ProjectID = projectID
	if run.Kind == "" {
		run.Kind = domain.KindJob
	}
	require.NoError(t, f.store.Create(context.Background(), run))
	return run
}

func (f *fixture) get(t *testing.T, id uuid.UUID) *domain.Run {
	t.Helper()
	run, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return run
}

func event(t *testing.T, typ events.EventType, run *domain.Run, mutate ...func(*events.Attributes)) events.Event {
	t.Helper()
	attrs := events.AttributesFromRun(run)
	attrs.PreviousStatus = domain.StatusCreated
	for _, m := range mutate {
		m(&attrs)
	}
	e, err := events.New(typ, attrs, events.WithRun(run))
	require.NoError(t, err)
	return e
}

func TestHandle_CreatedEnqueuesPrepare(t *testing.T) {
	f := newFixture()
	run := f.create(t, &domain.Run{ManagedBy: domain.ManagedByAgent})

	f.exec.Handle(context.Background(), event(t, events.RunCreated, run))

	require.Len(t, f.queue.tasks, 1)
	task := f.queue.tasks[0]
	assert.Equal(t, tasks.Prepare, task.name)
	assert.Equal(t, run.ID, task.payload.RunID)
	assert.False(t, task.payload.Eager)
	assert.False(t, task.opts.Eager)
}

func TestHandle_CreatedEager(t *testing.T) {
	tests := []struct {
		name  string
		meta  map[string]any
		eager bool
	}{
		{"meta flag", map[string]any{domain.MetaEager: true}, false},
		{"event attribute", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			run := f.create(t, &domain.Run{ManagedBy: domain.ManagedByAgent, MetaInfo: tt.meta})

			f.exec.Handle(context.Background(), event(t, events.RunResumed, run, func(a *events.Attributes) {
				a.Eager = tt.eager
			}))

			require.Len(t, f.queue.tasks, 1)
			assert.True(t, f.queue.tasks[0].payload.Eager)
			assert.True(t, f.queue.tasks[0].opts.Eager)
		})
	}
}

func TestHandle_CreatedSkips(t *testing.T) {
	f := newFixture()
	parent := f.create(t, &domain.Run{Kind: domain.KindDAG, ManagedBy: domain.ManagedByAgent})
	child := f.create(t, &domain.Run{ManagedBy: domain.ManagedByAgent, PipelineID: &parent.ID})
	external := f.create(t, &domain.Run{ManagedBy: domain.ManagedByUser})

	f.exec.Handle(context.Background(), event(t, events.RunCreated, child))
	f.exec.Handle(context.Background(), event(t, events.RunCreated, external))

	assert.Empty(t, f.queue.tasks)

	// Неуправляемый run с исходной спецификацией всё равно компилируется.
	withSpec := f.create(t, &domain.Run{ManagedBy: domain.ManagedByCLI, RawContent: "kind: job"})
	f.exec.Handle(context.Background(), event(t, events.RunCreated, withSpec))
	assert.Equal(t, []tasks.Name{tasks.Prepare}, f.queue.names())
}

func TestHandle_Approved(t *testing.T) {
	f := newFixture()
	compiled := f.create(t, &domain.Run{ManagedBy: domain.ManagedByAgent, Status: domain.StatusCompiled})
	fresh := f.create(t, &domain.Run{ManagedBy: domain.ManagedByAgent})
	running := f.create(t, &domain.Run{ManagedBy: domain.ManagedByAgent, Status: domain.StatusRunning})

	f.exec.Handle(context.Background(), event(t, events.RunApproved, compiled))
	f.exec.Handle(context.Background(), event(t, events.RunApproved, fresh))
	f.exec.Handle(context.Background(), event(t, events.RunApproved, running))

	require.Len(t, f.queue.tasks, 2)
	assert.Equal(t, tasks.Start, f.queue.tasks[0].name)
	assert.Equal(t, compiled.ID, f.queue.tasks[0].payload.RunID)
	assert.Equal(t, tasks.Prepare, f.queue.tasks[1].name)
	assert.Equal(t, fresh.ID, f.queue.tasks[1].payload.RunID)
}

func TestHandle_Stopping(t *testing.T) {
	f := newFixture()
	managed := f.create(t, &domain.Run{ManagedBy: domain.ManagedByAgent, Status: domain.StatusStopping})
	external := f.create(t, &domain.Run{ManagedBy: domain.ManagedByUser, Status: domain.StatusStopping})

	f.exec.Handle(context.Background(), event(t, events.RunStopping, managed))
	f.exec.Handle(context.Background(), event(t, events.RunStopping, external))

	require.Len(t, f.queue.tasks, 1)
	task := f.queue.tasks[0]
	assert.Equal(t, tasks.Stop, task.name)
	assert.True(t, task.payload.UpdateStatus)
	assert.False(t, task.payload.Clean)
}

func TestHandle_NewArtifacts(t *testing.T) {
	f := newFixture()
	run := f.create(t, &domain.Run{Status: domain.StatusRunning})
	artifacts := []domain.ArtifactInput{{Name: "model", Kind: domain.ArtifactModel}}

	f.exec.Handle(context.Background(), event(t, events.RunNewArtifacts, run, func(a *events.Attributes) {
		a.Artifacts = artifacts
	}))

	require.Len(t, f.queue.tasks, 1)
	assert.Equal(t, tasks.SetArtifacts, f.queue.tasks[0].name)
	assert.Equal(t, artifacts, f.queue.tasks[0].payload.Artifacts)
}

func TestHandle_DoneDelaysNotify(t *testing.T) {
	f := newFixture()
	run := f.create(t, &domain.Run{Status: domain.StatusSucceeded})

	f.exec.Handle(context.Background(), event(t, events.RunDone, run))

	require.Len(t, f.queue.tasks, 1)
	assert.Equal(t, tasks.NotifyDone, f.queue.tasks[0].name)
	assert.Equal(t, DefaultNotifyDoneDelay, f.queue.tasks[0].opts.Delay)
}

func TestHandle_IgnoresOtherEvents(t *testing.T) {
	f := newFixture()
	run := f.create(t, &domain.Run{Status: domain.StatusRunning})

	f.exec.Handle(context.Background(), event(t, events.RunArchived, run))
	f.exec.Handle(context.Background(), event(t, events.RunNewStatus, run))

	assert.Empty(t, f.queue.tasks)
}

func TestHandle_QueueErrorIsSwallowed(t *testing.T) {
	f := newFixture()
	f.queue.err = errors.New("broker unavailable")
	run := f.create(t, &domain.Run{ManagedBy: domain.ManagedByAgent})

	assert.NotPanics(t, func() {
		f.exec.Handle(context.Background(), event(t, events.RunCreated, run))
	})
}

func TestHandle_DeletedOrphansCacheClones(t *testing.T) {
	f := newFixture()
	original := f.create(t, &domain.Run{Status: domain.StatusSucceeded})
	clone := f.create(t, &domain.Run{Status: domain.StatusSkipped, OriginalID: &original.ID, CloningKind: domain.CloningCache})
	copied := f.create(t, &domain.Run{Status: domain.StatusSucceeded, OriginalID: &original.ID, CloningKind: domain.CloningCopy})

	f.exec.Handle(context.Background(), event(t, events.RunDeleted, original))

	got := f.get(t, clone.ID)
	assert.Nil(t, got.OriginalID)
	assert.Equal(t, domain.CloningNone, got.CloningKind)
	require.Len(t, f.queue.tasks, 1)
	assert.Equal(t, tasks.Prepare, f.queue.tasks[0].name)
	assert.Equal(t, clone.ID, f.queue.tasks[0].payload.RunID)

	assert.NotNil(t, f.get(t, copied.ID).OriginalID)
	// Одиночный run не каскадируется.
	assert.Equal(t, domain.LiveStateLive, f.get(t, original.ID).LiveState)
}

func TestHandle_DeletedFailsBuildWaiters(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	build := f.create(t, &domain.Run{Status: domain.StatusRunning})
	waiting := f.create(t, &domain.Run{Status: domain.StatusCompiled, Pending: domain.PendingBuild})
	approval := f.create(t, &domain.Run{Status: domain.StatusCompiled, Pending: domain.PendingApproval})
	for _, down := range []*domain.Run{waiting, approval} {
		require.NoError(t, f.store.Edges().Create(ctx, &domain.RunEdge{
			UpstreamID: build.ID, DownstreamID: down.ID, Kind: domain.EdgeBuild,
		}))
	}

	f.exec.Handle(ctx, event(t, events.RunDeleted, build))

	got := f.get(t, waiting.ID)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, domain.ReasonBuildDeleted, got.LastCondition().Reason)
	assert.Equal(t, domain.StatusCompiled, f.get(t, approval.ID).Status)
}

func TestHandle_DeletedCascadesPipeline(t *testing.T) {
	f := newFixture()
	pipeline := f.create(t, &domain.Run{Kind: domain.KindDAG, ManagedBy: domain.ManagedByAgent, Status: domain.StatusRunning})
	managed := f.create(t, &domain.Run{ManagedBy: domain.ManagedByAgent, Status: domain.StatusRunning, PipelineID: &pipeline.ID})
	external := f.create(t, &domain.Run{ManagedBy: domain.ManagedByUser, Status: domain.StatusRunning, PipelineID: &pipeline.ID})

	f.exec.Handle(context.Background(), event(t, events.RunDeleted, pipeline))

	for _, id := range []uuid.UUID{pipeline.ID, managed.ID, external.ID} {
		got := f.get(t, id)
		assert.Equal(t, domain.LiveStateDeletionProgressing, got.LiveState)
		assert.Equal(t, domain.StatusStopping, got.Status)
	}

	stopped := make([]uuid.UUID, 0)
	for _, task := range f.queue.tasks {
		require.Equal(t, tasks.Stop, task.name)
		stopped = append(stopped, task.payload.RunID)
	}
	assert.ElementsMatch(t, []uuid.UUID{pipeline.ID, managed.ID}, stopped)
}

func TestHandle_DeletedAfterCascadeDoesNotStopAgain(t *testing.T) {
	f := newFixture()
	pipeline := f.create(t, &domain.Run{Kind: domain.KindDAG, ManagedBy: domain.ManagedByAgent, Status: domain.StatusRunning})
	child := f.create(t, &domain.Run{ManagedBy: domain.ManagedByAgent, Status: domain.StatusRunning, PipelineID: &pipeline.ID})

	// Каскад уже выполнен тем, кто записал run.deleted.
	_, err := livestate.New(livestate.Config{Runs: f.store.Runs()}).Delete(context.Background(), pipeline.ID)
	require.NoError(t, err)

	f.exec.Handle(context.Background(), event(t, events.RunDeleted, f.get(t, pipeline.ID)))

	assert.Empty(t, f.queue.tasks)
	assert.Equal(t, domain.LiveStateDeletionProgressing, f.get(t, child.ID).LiveState)
}

func TestHandle_DeletedRunAlreadyPurged(t *testing.T) {
	f := newFixture()
	run := &domain.Run{ID: uuid.New(), ProjectID: projectID, Kind: domain.KindJob}

	assert.NotPanics(t, func() {
		f.exec.Handle(context.Background(), event(t, events.RunDeleted, run))
	})
	assert.Empty(t, f.queue.tasks)
}

func TestRun_ConsumesOutbox(t *testing.T) {
	f := newFixture()
	outbox := events.NewOutbox(8, nil)
	run := f.create(t, &domain.Run{Status: domain.StatusFailed})
	require.NoError(t, outbox.Publish(context.Background(), event(t, events.RunDone, run)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.exec.Run(ctx, outbox) }()

	// fakeQueue читается только после остановки Run.
	time.Sleep(50 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	require.Len(t, f.queue.tasks, 1)
	assert.Equal(t, tasks.NotifyDone, f.queue.tasks[0].name)
}
