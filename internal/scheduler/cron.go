package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Параметры Loop по умолчанию.
const (
	DefaultLoopSpec  = "@every 10s"
	DefaultLoopBatch = 100
)

// cronParser — стандартные 5 полей плюс дескрипторы (@every, @hourly).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSpec проверяет cron-выражение расписания Loop.
func ValidateSpec(spec string) error {
	if _, err := cronParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return nil
}

// LoopConfig — конфигурация Loop.
type LoopConfig struct {
	// Spec — расписание (default: "@every 10s").
	Spec string

	// Batch — максимум pipeline'ов за тик (default: 100).
	Batch int

	Logger *slog.Logger
}

// Loop периодически вызывает ReconcilePipeline для активных pipeline'ов.
// Тики не перекрываются: пока идёт тик, следующий пропускается.
type Loop struct {
	mgr    *Manager
	spec   string
	batch  int
	logger *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewLoop создаёт Loop. Невалидное расписание — ошибка.
func NewLoop(mgr *Manager, cfg LoopConfig) (*Loop, error) {
	spec := cfg.Spec
	if spec == "" {
		spec = DefaultLoopSpec
	}
	if err := ValidateSpec(spec); err != nil {
		return nil, err
	}
	batch := cfg.Batch
	if batch <= 0 {
		batch = DefaultLoopBatch
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		mgr:    mgr,
		spec:   spec,
		batch:  batch,
		logger: logger.With("component", "reconcile_loop"),
	}, nil
}

// Start запускает расписание. ctx передаётся в каждый тик.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return nil
	}

	log := cronLogger{l.logger}
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)
	if _, err := c.AddFunc(l.spec, func() { l.Tick(ctx) }); err != nil {
		return fmt.Errorf("schedule reconcile loop: %w", err)
	}

	c.Start()
	l.cron = c
	l.running = true
	l.logger.Info("reconcile loop started", "spec", l.spec, "batch", l.batch)
	return nil
}

// Stop останавливает расписание и ждёт завершения текущего тика
// (не дольше ctx).
func (l *Loop) Stop(ctx context.Context) {
	l.mu.Lock()
	c := l.cron
	l.cron = nil
	l.running = false
	l.mu.Unlock()

	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		l.logger.Warn("reconcile loop stop timed out")
	}
	l.logger.Info("reconcile loop stopped")
}

// Tick выполняет один проход и возвращает число продвинутых pipeline'ов.
func (l *Loop) Tick(ctx context.Context) int {
	pipelines, err := l.mgr.runs.ListActivePipelines(ctx, l.batch)
	if err != nil {
		l.logger.Error("failed to list active pipelines", "error", err)
		return 0
	}

	advanced := 0
	for _, p := range pipelines {
		if ctx.Err() != nil {
			break
		}
		if l.mgr.ReconcilePipeline(ctx, p.ID) {
			advanced++
		}
	}

	if len(pipelines) > 0 {
		l.logger.Debug("reconcile tick", "pipelines", len(pipelines), "advanced", advanced)
	}
	return advanced
}

// cronLogger — адаптер slog для cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.logger.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.logger.Error(msg, append(keysAndValues, "error", err)...)
}
