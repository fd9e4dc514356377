package scheduler

import (
	"context"

	"github.com/shaiso/Conveyor/internal/tasks"
)

// Register регистрирует операции Manager'а в роутере задач.
// Результат операции (bool) не считается ошибкой задачи: повтор не нужен.
func (m *Manager) Register(r *tasks.Router) {
	r.Register(tasks.Prepare, func(ctx context.Context, p tasks.Payload) error {
		m.Prepare(ctx, p.RunID, p.Eager)
		return nil
	})
	r.Register(tasks.Start, func(ctx context.Context, p tasks.Payload) error {
		m.Start(ctx, p.RunID)
		return nil
	})
	r.Register(tasks.Stop, func(ctx context.Context, p tasks.Payload) error {
		m.Stop(ctx, p.RunID, p.UpdateStatus, p.Clean)
		return nil
	})
	r.Register(tasks.SetArtifacts, func(ctx context.Context, p tasks.Payload) error {
		m.SetArtifacts(ctx, p.RunID, p.Artifacts)
		return nil
	})
	r.Register(tasks.Built, func(ctx context.Context, p tasks.Payload) error {
		m.Built(ctx, p.RunID)
		return nil
	})
	r.Register(tasks.NotifyDone, func(ctx context.Context, p tasks.Payload) error {
		m.NotifyDone(ctx, p.RunID)
		return nil
	})
	r.Register(tasks.Reconcile, func(ctx context.Context, p tasks.Payload) error {
		m.ReconcilePipeline(ctx, p.RunID)
		return nil
	})
}
