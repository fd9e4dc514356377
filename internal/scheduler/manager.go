package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shaiso/Conveyor/internal/cluster"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/events"
	"github.com/shaiso/Conveyor/internal/lifecycle"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/tasks"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Параметры повтора записи артефактов.
const (
	defaultArtifactAttempts = 2
	defaultArtifactDelay    = 100 * time.Millisecond
)

// Compiler компилирует пользовательскую спецификацию.
type Compiler interface {
	Compile(ctx context.Context, raw string) (*domain.CompiledSpec, error)
}

// Converter строит манифест кластера.
type Converter interface {
	Convert(run *domain.Run, spec *domain.OperationSpec) (*cluster.Manifest, error)
}

// Cluster — внешний исполнитель.
type Cluster interface {
	Submit(ctx context.Context, m *cluster.Manifest) error
	Stop(ctx context.Context, runID uuid.UUID, kind domain.RunKind) error
	Clean(ctx context.Context, runID uuid.UUID, kind domain.RunKind) error
}

// Recorder записывает события (реализуется events.Auditor).
type Recorder interface {
	Record(ctx context.Context, t events.EventType, attrs events.Attributes, opts ...events.Option) error
}

// Config — конфигурация Manager.
type Config struct {
	Runs      repo.RunStore
	Edges     repo.EdgeStore
	Artifacts repo.ArtifactStore

	Compiler  Compiler
	Converter Converter
	Cluster   Cluster

	// Auditor — запись событий. nil — события не пишутся.
	Auditor Recorder

	// Queue — постановка задач. nil — задачи выполняются inline.
	Queue tasks.Queue

	// InCluster — job/service отправляются в кластер.
	InCluster bool

	// ArtifactAttempts / ArtifactDelay — повтор SetArtifacts при конфликте (default: 2, 100ms).
	ArtifactAttempts int
	ArtifactDelay    time.Duration

	Logger *slog.Logger
}

// Manager — Scheduling Manager.
type Manager struct {
	runs      repo.RunStore
	edges     repo.EdgeStore
	artifacts repo.ArtifactStore
	resolver  *engine.Resolver

	compiler  Compiler
	converter Converter
	cluster   Cluster
	auditor   Recorder
	queue     tasks.Queue
	inCluster bool

	artifactAttempts int
	artifactDelay    time.Duration

	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// New создаёт Manager.
func New(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.ArtifactAttempts
	if attempts <= 0 {
		attempts = defaultArtifactAttempts
	}
	delay := cfg.ArtifactDelay
	if delay <= 0 {
		delay = defaultArtifactDelay
	}

	m := &Manager{
		runs:             cfg.Runs,
		edges:            cfg.Edges,
		artifacts:        cfg.Artifacts,
		resolver:         engine.NewResolver(cfg.Runs, cfg.Edges),
		compiler:         cfg.Compiler,
		converter:        cfg.Converter,
		cluster:          cfg.Cluster,
		auditor:          cfg.Auditor,
		queue:            cfg.Queue,
		inCluster:        cfg.InCluster,
		artifactAttempts: attempts,
		artifactDelay:    delay,
		logger:           logger,
		tracer:           telemetry.Tracer(),
		now:              func() time.Time { return time.Now().UTC() },
	}

	if m.queue == nil {
		router := tasks.NewRouter()
		m.Register(router)
		m.queue = tasks.NewDispatcher(tasks.DispatcherConfig{Router: router, Logger: logger})
	}
	return m
}

// Resolver возвращает DAG resolver поверх хранилищ Manager'а.
func (m *Manager) Resolver() *engine.Resolver {
	return m.resolver
}

// operation — общая обвязка: span, метрики, логгер и защита от panic.
func (m *Manager) operation(ctx context.Context, op string, runID uuid.UUID, fn func(ctx context.Context, logger *slog.Logger) bool) (ok bool) {
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, "scheduler."+op,
		trace.WithAttributes(attribute.String("run_id", runID.String())))
	logger := m.logger.With("operation", op, "run_id", runID)

	defer func() {
		outcome := "ok"
		if r := recover(); r != nil {
			logger.Error("operation panicked", "panic", r)
			span.SetStatus(codes.Error, fmt.Sprint(r))
			ok = false
			outcome = "failed"
		} else if !ok {
			outcome = "rejected"
		}
		span.SetAttributes(attribute.Bool("advanced", ok))
		span.End()
		telemetry.SchedulerOperations.WithLabelValues(op, outcome).Inc()
		telemetry.SchedulerOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	return fn(telemetry.WithLogger(ctx, logger), logger)
}

// load перечитывает run. Отсутствие run — предупреждение, не ошибка.
func (m *Manager) load(ctx context.Context, logger *slog.Logger, id uuid.UUID) (*domain.Run, bool) {
	run, err := m.runs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			logger.Warn("run not found", "error", ErrRunNotFound)
		} else {
			logger.Error("failed to load run", "error", err)
		}
		return nil, false
	}
	return run, true
}

// SetStatus применяет условие, сохраняет статус и пишет события.
// Возвращает false, если переход отклонён или не сохранён.
func (m *Manager) SetStatus(ctx context.Context, run *domain.Run, cond domain.StatusCondition, force bool) bool {
	prev, changed := lifecycle.ApplyCondition(run, cond, force)
	if !changed {
		m.logger.Debug("status transition rejected",
			"run_id", run.ID, "from", prev, "to", cond.Type)
		return false
	}

	if err := m.runs.SaveStatus(ctx, run); err != nil {
		m.logger.Error("failed to save status", "run_id", run.ID, "status", run.Status, "error", err)
		return false
	}
	telemetry.StatusTransitions.WithLabelValues(run.Status.String()).Inc()

	if prev == run.Status {
		return true
	}

	m.logger.Info("run status changed",
		"run_id", run.ID,
		"from", prev,
		"to", run.Status,
		"reason", cond.Reason,
	)

	attrs := events.AttributesFromRun(run)
	attrs.PreviousStatus = prev
	attrs.Reason = cond.Reason
	attrs.Message = cond.Message

	m.record(ctx, events.RunNewStatus, attrs, run)
	switch {
	case run.Status.IsDone():
		m.record(ctx, events.RunDone, attrs, run)
	case run.Status == domain.StatusStopping:
		m.record(ctx, events.RunStopping, attrs, run)
	}
	return true
}

// fail переводит run в FAILED. Ошибка сохранения только логируется.
func (m *Manager) fail(ctx context.Context, run *domain.Run, reason string, err error, force bool) {
	m.logger.Warn("run failed", "run_id", run.ID, "reason", reason, "error", err)
	m.SetStatus(ctx, run, domain.NewCondition(domain.StatusFailed, reason, err.Error()), force)
}

// record пишет событие, ошибки построения логируются.
func (m *Manager) record(ctx context.Context, t events.EventType, attrs events.Attributes, run *domain.Run) {
	if m.auditor == nil {
		return
	}
	if err := m.auditor.Record(ctx, t, attrs, events.WithRun(run)); err != nil {
		m.logger.Error("failed to record event", "event_type", t, "run_id", attrs.RunID, "error", err)
	}
}

// enqueue ставит задачу, ошибка постановки логируется.
func (m *Manager) enqueue(ctx context.Context, name tasks.Name, payload tasks.Payload, opts tasks.Options) bool {
	if err := m.queue.Enqueue(ctx, name, payload, opts); err != nil {
		m.logger.Error("failed to enqueue task", "task", name, "run_id", payload.RunID, "error", err)
		return false
	}
	return true
}
