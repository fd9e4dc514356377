package cluster

import "errors"

var (
	// ErrUnsupportedKind — run этого вида не исполняется на кластере напрямую.
	ErrUnsupportedKind = errors.New("unsupported run kind")

	// ErrNoContainer — в спецификации нет основного контейнера.
	ErrNoContainer = errors.New("operation has no container")

	// ErrInvalidResources — не удалось разобрать запросы ресурсов.
	ErrInvalidResources = errors.New("invalid resources")
)
