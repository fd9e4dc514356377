package events

import "errors"

var (
	// ErrUnknownEventType — тип события отсутствует в registry.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrMissingAttribute — не задан обязательный атрибут события.
	ErrMissingAttribute = errors.New("missing required attribute")

	// ErrOutboxFull — буфер outbox переполнен, событие отброшено.
	ErrOutboxFull = errors.New("outbox is full")
)
