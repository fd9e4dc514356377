package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LeaderLockKey — ключ pg advisory lock лидера reconcile loop.
const LeaderLockKey int64 = 0x636f6e76 // "conv"

// RunAsLeader пытается взять advisory lock раз в interval и, получив его,
// вызывает lead с контекстом, живущим до потери соединения или отмены ctx.
// Lock держится на выделенном соединении пула: advisory lock привязан к сессии.
func RunAsLeader(ctx context.Context, pool *pgxpool.Pool, key int64, interval time.Duration, logger *slog.Logger, lead func(ctx context.Context)) error {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		acquired, err := holdLock(ctx, pool, key, interval, logger, lead)
		if err != nil && ctx.Err() == nil {
			logger.Warn("leader lock attempt failed", "error", err)
		}
		if acquired {
			logger.Info("leadership lost")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// holdLock берёт lock и держит его, пока lead работает, а соединение живо.
func holdLock(ctx context.Context, pool *pgxpool.Pool, key int64, interval time.Duration, logger *slog.Logger, lead func(ctx context.Context)) (bool, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var ok bool
	if err := conn.QueryRow(ctx, "select pg_try_advisory_lock($1)", key).Scan(&ok); err != nil {
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		return false, nil
	}
	logger.Info("leadership acquired", "lock_key", key)

	leadCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		lead(leadCtx)
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
		case <-done:
		case <-ticker.C:
			if err := conn.Ping(ctx); err == nil {
				continue
			}
			logger.Warn("leader connection lost")
		}
		break
	}

	cancel()
	<-done
	unlockCtx, unlockCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer unlockCancel()
	_, _ = conn.Exec(unlockCtx, "select pg_advisory_unlock($1)", key)
	return true, nil
}
