package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Conveyor/internal/cluster"
	"github.com/shaiso/Conveyor/internal/compiler"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/events"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/livestate"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/scheduler"
	"github.com/shaiso/Conveyor/internal/tasks"
)

// Deps — внешние зависимости графа. Незаданный Publisher — задачи inline,
// незаданный Durable — события только в outbox, незаданный Cluster —
// job/service не отправляются в кластер.
type Deps struct {
	Runs      repo.RunStore
	Edges     repo.EdgeStore
	Artifacts repo.ArtifactStore

	Publisher tasks.Publisher
	Durable   events.Sink
	Cluster   scheduler.Cluster
	Compiler  scheduler.Compiler
}

// App — собранный граф компонентов.
type App struct {
	Config config.Config

	Runs      repo.RunStore
	Edges     repo.EdgeStore
	Artifacts repo.ArtifactStore

	Manager    *scheduler.Manager
	LiveState  *livestate.Manager
	Auditor    *events.Auditor
	Outbox     *events.Outbox
	Executor   *executor.Executor
	Dispatcher *tasks.Dispatcher

	// Заполняются Connect.
	Pool    *pgxpool.Pool
	MQ      *mq.Connection
	Redis   *redis.Client
	Cluster *cluster.Executor

	logger  *slog.Logger
	closers []func()
}

// Wire собирает граф поверх переданных зависимостей.
func Wire(cfg config.Config, deps Deps, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Runs == nil || deps.Edges == nil || deps.Artifacts == nil {
		return nil, errors.New("app: stores are required")
	}

	comp := deps.Compiler
	if comp == nil {
		c, err := compiler.New()
		if err != nil {
			return nil, fmt.Errorf("compiler: %w", err)
		}
		comp = c
	}

	a := &App{
		Config:    cfg,
		Runs:      deps.Runs,
		Edges:     deps.Edges,
		Artifacts: deps.Artifacts,
		logger:    logger,
	}

	a.Outbox = events.NewOutbox(cfg.OutboxSize, logger.With("component", "outbox"))
	a.Auditor = events.NewAuditor(events.Config{
		Durable: deps.Durable,
		Local:   a.Outbox,
		Logger:  logger.With("component", "auditor"),
	})

	router := tasks.NewRouter()
	a.Dispatcher = tasks.NewDispatcher(tasks.DispatcherConfig{
		Router:           router,
		Publisher:        deps.Publisher,
		SchedulerEnabled: cfg.SchedulerEnabled,
		Logger:           logger.With("component", "dispatcher"),
	})

	inCluster := cfg.ClusterEnabled && deps.Cluster != nil
	mcfg := scheduler.Config{
		Runs:      deps.Runs,
		Edges:     deps.Edges,
		Artifacts: deps.Artifacts,
		Compiler:  comp,
		Converter: cluster.NewConverter(cluster.ConverterConfig{Namespace: cfg.Namespace}),
		Auditor:   a.Auditor,
		Queue:     a.Dispatcher,
		InCluster: inCluster,
		Logger:    logger.With("component", "scheduler"),
	}
	if inCluster {
		mcfg.Cluster = deps.Cluster
	}
	a.Manager = scheduler.New(mcfg)
	a.Manager.Register(router)

	a.LiveState = livestate.New(livestate.Config{
		Runs:   deps.Runs,
		Logger: logger.With("component", "livestate"),
	})

	a.Executor = executor.New(executor.Config{
		Runs:            deps.Runs,
		Edges:           deps.Edges,
		Queue:           a.Dispatcher,
		Status:          a.Manager,
		LiveState:       a.LiveState,
		NotifyDoneDelay: cfg.NotifyDoneDelay,
		Logger:          logger.With("component", "executor"),
	})

	return a, nil
}

// Drain синхронно обрабатывает накопленные в outbox события.
// Используется в inline-режиме (CLI), где отдельного consumer'а нет.
func (a *App) Drain(ctx context.Context) {
	a.Outbox.Drain(ctx, a.Executor.Handle)
}

// Close закрывает открытые Connect'ом подключения в обратном порядке.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}
