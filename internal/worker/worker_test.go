package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/tasks"
)

func newTestWorker(router *tasks.Router) *Worker {
	return New(Config{Router: router})
}

func delivery(name tasks.Name, payload any) *mq.Delivery {
	return &mq.Delivery{Message: *mq.NewMessage(mq.MessageType(name), payload)}
}

func TestNew_Defaults(t *testing.T) {
	w := New(Config{})

	if w.prefetch != defaultPrefetch {
		t.Errorf("expected prefetch %d, got %d", defaultPrefetch, w.prefetch)
	}
	if w.queue != mq.QueueTasks {
		t.Errorf("expected queue %s, got %s", mq.QueueTasks, w.queue)
	}
	if w.router == nil || w.logger == nil {
		t.Error("expected router and logger defaults")
	}
	if w.IsStopped() {
		t.Error("new worker should not be stopped")
	}
}

func TestWorker_StartStopConcurrent(t *testing.T) {
	for range 50 {
		w := New(Config{Conn: &mq.Connection{}})

		done := make(chan error, 1)
		go func() { done <- w.Start(context.Background()) }()
		w.Stop()

		if err := <-done; err != nil && !errors.Is(err, ErrWorkerStopped) {
			t.Fatalf("unexpected start error: %v", err)
		}
		// Повторный Stop не блокируется: consumer, запущенный до Stop, уже отменён.
		w.Stop()
		if !w.IsStopped() {
			t.Fatal("worker should be stopped")
		}
	}
}

func TestWorker_StartAfterStop(t *testing.T) {
	w := New(Config{Conn: &mq.Connection{}})
	w.Stop()

	if err := w.Start(context.Background()); !errors.Is(err, ErrWorkerStopped) {
		t.Fatalf("expected ErrWorkerStopped, got %v", err)
	}
}

func TestHandleTask_Dispatches(t *testing.T) {
	router := tasks.NewRouter()
	var got tasks.Payload
	router.Register(tasks.Stop, func(_ context.Context, p tasks.Payload) error {
		got = p
		return nil
	})

	id := uuid.New()
	w := newTestWorker(router)

	// payload приходит из JSON как map — ParsePayload восстанавливает структуру
	err := w.handleTask(context.Background(), delivery(tasks.Stop, map[string]any{
		"run_id":        id.String(),
		"update_status": true,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.RunID != id || !got.UpdateStatus {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestHandleTask_UnknownTaskIsPermanent(t *testing.T) {
	w := newTestWorker(tasks.NewRouter())

	err := w.handleTask(context.Background(), delivery("scheduler.unknown", tasks.Payload{RunID: uuid.New()}))
	if !errors.Is(err, mq.ErrPermanent) {
		t.Fatalf("expected ErrPermanent, got %v", err)
	}
	if !errors.Is(err, tasks.ErrUnknownTask) {
		t.Errorf("expected ErrUnknownTask in chain, got %v", err)
	}
}

func TestHandleTask_InvalidPayloadIsPermanent(t *testing.T) {
	router := tasks.NewRouter()
	router.Register(tasks.Prepare, func(context.Context, tasks.Payload) error { return nil })
	w := newTestWorker(router)

	err := w.handleTask(context.Background(), delivery(tasks.Prepare, map[string]any{"run_id": "not-a-uuid"}))
	if !errors.Is(err, mq.ErrPermanent) {
		t.Fatalf("expected ErrPermanent, got %v", err)
	}

	err = w.handleTask(context.Background(), delivery(tasks.Prepare, map[string]any{}))
	if !errors.Is(err, mq.ErrPermanent) {
		t.Fatalf("expected ErrPermanent for empty run_id, got %v", err)
	}
}

func TestHandleTask_HandlerErrorIsRetriable(t *testing.T) {
	router := tasks.NewRouter()
	boom := errors.New("database is down")
	router.Register(tasks.Start, func(context.Context, tasks.Payload) error { return boom })
	w := newTestWorker(router)

	err := w.handleTask(context.Background(), delivery(tasks.Start, tasks.Payload{RunID: uuid.New()}))
	if !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if errors.Is(err, mq.ErrPermanent) {
		t.Error("handler errors should be retriable")
	}
}
