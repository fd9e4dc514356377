package repo

import (
	"context"
	"errors"
	"time"
)

// WithRetry выполняет fn и повторяет её при ErrConflict.
//
// attempts — общее число попыток (минимум 1), delay — фиксированная пауза между ними.
// Остальные ошибки возвращаются сразу.
func WithRetry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, ErrConflict) {
			return err
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
