package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/events"
	"github.com/shaiso/Conveyor/internal/livestate"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/tasks"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// DefaultNotifyDoneDelay — задержка notify_done после run.done.
const DefaultNotifyDoneDelay = time.Second

// StatusWriter меняет статус run с записью событий (реализуется scheduler.Manager).
type StatusWriter interface {
	SetStatus(ctx context.Context, run *domain.Run, cond domain.StatusCondition, force bool) bool
}

// LiveState — каскад удаления (реализуется livestate.Manager).
type LiveState interface {
	Delete(ctx context.Context, runID uuid.UUID) (*livestate.Result, error)
}

// Config — конфигурация Executor.
type Config struct {
	Runs      repo.RunStore
	Edges     repo.EdgeStore
	Queue     tasks.Queue
	Status    StatusWriter
	LiveState LiveState

	// NotifyDoneDelay — задержка notify_done (default: 1s).
	NotifyDoneDelay time.Duration

	Logger *slog.Logger
}

// handler — реакция на событие одного типа.
type handler func(ctx context.Context, e events.Event) error

// Executor — диспетчер событий.
type Executor struct {
	runs      repo.RunStore
	edges     repo.EdgeStore
	queue     tasks.Queue
	status    StatusWriter
	liveState LiveState

	notifyDelay time.Duration
	handlers    map[events.EventType]handler
	logger      *slog.Logger
}

// New создаёт Executor.
func New(cfg Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	delay := cfg.NotifyDoneDelay
	if delay <= 0 {
		delay = DefaultNotifyDoneDelay
	}

	e := &Executor{
		runs:        cfg.Runs,
		edges:       cfg.Edges,
		queue:       cfg.Queue,
		status:      cfg.Status,
		liveState:   cfg.LiveState,
		notifyDelay: delay,
		logger:      logger,
	}
	e.handlers = map[events.EventType]handler{
		events.RunCreated:      e.onCreated,
		events.RunResumed:      e.onCreated,
		events.RunApproved:     e.onApproved,
		events.RunStopping:     e.onStopping,
		events.RunNewArtifacts: e.onNewArtifacts,
		events.RunDeleted:      e.onDeleted,
		events.RunDone:         e.onDone,
	}
	return e
}

// Handle обрабатывает одно событие. Ошибки логируются: событие не повторяется.
func (e *Executor) Handle(ctx context.Context, ev events.Event) {
	_ = e.dispatch(ctx, ev)
}

// dispatch вызывает обработчик типа и возвращает его ошибку.
func (e *Executor) dispatch(ctx context.Context, ev events.Event) error {
	h, ok := e.handlers[ev.Type]
	if !ok {
		return nil
	}

	logger := telemetry.WithEventType(e.logger, ev.Type.String()).With("run_id", ev.Attributes.RunID)
	if err := h(telemetry.WithLogger(ctx, logger), ev); err != nil {
		telemetry.EventsHandled.WithLabelValues(ev.Type.String(), "failed").Inc()
		logger.Error("event handler failed", "event_id", ev.ID, "error", err)
		return err
	}
	telemetry.EventsHandled.WithLabelValues(ev.Type.String(), "ok").Inc()
	return nil
}

// Run обрабатывает события outbox до отмены ctx.
func (e *Executor) Run(ctx context.Context, outbox *events.Outbox) error {
	e.logger.Info("executor started")
	err := outbox.Run(ctx, e.Handle)
	e.logger.Info("executor stopped")
	return err
}

func (e *Executor) load(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	run, err := e.runs.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	return run, nil
}

func (e *Executor) enqueue(ctx context.Context, name tasks.Name, payload tasks.Payload, opts tasks.Options) error {
	if err := e.queue.Enqueue(ctx, name, payload, opts); err != nil {
		return fmt.Errorf("enqueue %s: %w", name, err)
	}
	return nil
}

// onCreated: prepare для управляемых (или с исходной спецификацией) run'ов вне pipeline.
// Детей pipeline запускает ReconcilePipeline.
func (e *Executor) onCreated(ctx context.Context, ev events.Event) error {
	run, err := e.load(ctx, ev.Attributes.RunID)
	if err != nil {
		return err
	}
	if (!run.IsManaged() && run.RawContent == "") || run.IsPipelineChild() {
		return nil
	}

	eager := run.IsEager() || ev.Attributes.Eager
	return e.enqueue(ctx, tasks.Prepare,
		tasks.Payload{RunID: run.ID, Eager: eager},
		tasks.Options{Eager: eager})
}

// onApproved: скомпилированный run стартует, некомпилированный готовится.
func (e *Executor) onApproved(ctx context.Context, ev events.Event) error {
	run, err := e.load(ctx, ev.Attributes.RunID)
	if err != nil {
		return err
	}

	switch {
	case run.Status == domain.StatusCompiled && run.IsManaged():
		return e.enqueue(ctx, tasks.Start, tasks.Payload{RunID: run.ID}, tasks.Options{Eager: run.IsEager()})
	case run.Status.IsCompilable():
		return e.enqueue(ctx, tasks.Prepare,
			tasks.Payload{RunID: run.ID, Eager: run.IsEager()},
			tasks.Options{Eager: run.IsEager()})
	default:
		return nil
	}
}

func (e *Executor) onStopping(ctx context.Context, ev events.Event) error {
	run, err := e.load(ctx, ev.Attributes.RunID)
	if err != nil {
		return err
	}
	if !run.IsManaged() {
		return nil
	}
	return e.enqueue(ctx, tasks.Stop, tasks.Payload{RunID: run.ID, UpdateStatus: true}, tasks.Options{})
}

func (e *Executor) onNewArtifacts(ctx context.Context, ev events.Event) error {
	return e.enqueue(ctx, tasks.SetArtifacts,
		tasks.Payload{RunID: ev.Attributes.RunID, Artifacts: ev.Attributes.Artifacts},
		tasks.Options{})
}

func (e *Executor) onDone(ctx context.Context, ev events.Event) error {
	return e.enqueue(ctx, tasks.NotifyDone,
		tasks.Payload{RunID: ev.Attributes.RunID},
		tasks.Options{Delay: e.notifyDelay})
}

// onDeleted отвязывает cache-клоны удалённого run, проваливает run'ы,
// ждущие его сборки, и каскадирует удаление на pipeline.
func (e *Executor) onDeleted(ctx context.Context, ev events.Event) error {
	run := ev.Run
	if loaded, err := e.load(ctx, ev.Attributes.RunID); err == nil {
		run = loaded
	} else if !errors.Is(err, repo.ErrNotFound) || run == nil {
		return err
	}

	var errs []error
	if err := e.orphanClones(ctx, run); err != nil {
		errs = append(errs, err)
	}
	if err := e.failBuildWaiters(ctx, run); err != nil {
		errs = append(errs, err)
	}
	if run.IsPipelineChild() || run.Kind.IsPipeline() {
		if err := e.cascadeDelete(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// orphanClones снимает происхождение с cache-клонов и отправляет их на prepare заново.
func (e *Executor) orphanClones(ctx context.Context, run *domain.Run) error {
	clones, err := e.runs.ListByOriginal(ctx, run.ID, domain.CloningCache)
	if err != nil {
		return fmt.Errorf("list cache clones: %w", err)
	}

	var errs []error
	for _, clone := range clones {
		clone.OriginalID = nil
		clone.CloningKind = domain.CloningNone
		if err := e.runs.Save(ctx, clone); err != nil {
			errs = append(errs, fmt.Errorf("orphan clone %s: %w", clone.ID, err))
			continue
		}
		if err := e.enqueue(ctx, tasks.Prepare, tasks.Payload{RunID: clone.ID}, tasks.Options{}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// failBuildWaiters проваливает run'ы с build-ребром от удалённого run, ждущие сборки.
func (e *Executor) failBuildWaiters(ctx context.Context, run *domain.Run) error {
	edges, err := e.edges.ListDownstream(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("list downstream edges: %w", err)
	}

	var errs []error
	for _, edge := range edges {
		if edge.Kind != domain.EdgeBuild {
			continue
		}
		waiter, err := e.load(ctx, edge.DownstreamID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if waiter.Pending != domain.PendingBuild || waiter.IsDone() {
			continue
		}
		e.status.SetStatus(ctx, waiter, domain.NewCondition(domain.StatusFailed, domain.ReasonBuildDeleted,
			"build run "+run.ID.String()+" was deleted"), false)
	}
	return errors.Join(errs...)
}

// cascadeDelete переводит потомков в DELETION_PROGRESSING и останавливает управляемых.
func (e *Executor) cascadeDelete(ctx context.Context, run *domain.Run) error {
	res, err := e.liveState.Delete(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("cascade delete: %w", err)
	}

	var errs []error
	for _, r := range res.Stopping {
		if !r.IsManaged() {
			continue
		}
		if err := e.enqueue(ctx, tasks.Stop, tasks.Payload{RunID: r.ID, UpdateStatus: true}, tasks.Options{}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
