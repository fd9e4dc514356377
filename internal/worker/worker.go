package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/tasks"
)

const defaultPrefetch = 5

// Worker выполняет задачи Scheduling Manager'а из очереди tasks.scheduler.
//
// Worker не хранит состояния: каждая задача перечитывает run по ID.
// Несколько экземпляров потребляют из одной очереди.
type Worker struct {
	conn     *mq.Connection
	router   *tasks.Router
	consumer *mq.Consumer
	queue    mq.Queue
	prefetch int

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool

	// mu защищает cancelFunc, consumer и stopped.
	mu sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	Conn *mq.Connection

	// Router — обработчики задач.
	Router *tasks.Router

	// Queue — очередь (default: tasks.scheduler).
	Queue mq.Queue

	// Prefetch — сколько задач брать в работу одновременно (default: 5).
	Prefetch int

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	queue := cfg.Queue
	if queue == "" {
		queue = mq.QueueTasks
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := cfg.Router
	if router == nil {
		router = tasks.NewRouter()
	}

	return &Worker{
		conn:     cfg.Conn,
		router:   router,
		queue:    queue,
		prefetch: prefetch,
		logger:   logger,
	}
}

// Start запускает consumer очереди задач.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return ErrWorkerStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker", "queue", w.queue, "prefetch", w.prefetch)

	consumer := mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
		Queue:    string(w.queue),
		Handler:  w.handleTask,
		Prefetch: w.prefetch,
	})
	w.consumer = consumer

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("task consumer error", "error", err)
		}
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker и ждёт завершения текущей задачи.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.stopped = true
	cancel, consumer := w.cancelFunc, w.consumer
	w.mu.Unlock()

	w.logger.Info("stopping worker...")

	if cancel != nil {
		cancel()
	}
	if consumer != nil {
		consumer.Stop()
	}

	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stopped
}
