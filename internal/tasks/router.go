package tasks

import (
	"context"
	"fmt"
	"sync"
)

// Handler — обработчик задачи.
type Handler func(ctx context.Context, payload Payload) error

// Router — реестр обработчиков по имени задачи.
type Router struct {
	mu       sync.RWMutex
	handlers map[Name]Handler
}

// NewRouter создаёт пустой Router.
func NewRouter() *Router {
	return &Router{handlers: make(map[Name]Handler)}
}

// Register добавляет обработчик. Повторная регистрация заменяет предыдущий.
func (r *Router) Register(name Name, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Handle выполняет задачу.
func (r *Router) Handle(ctx context.Context, name Name, payload Payload) error {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return h(ctx, payload)
}

// Names возвращает имена зарегистрированных задач.
func (r *Router) Names() []Name {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]Name, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	return names
}
