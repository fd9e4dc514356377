package engine

import "errors"

// Ошибки построения графа pipeline.
var (
	// ErrMissingDependency — ребро ссылается на run вне pipeline.
	ErrMissingDependency = errors.New("run depends on unknown run")

	// ErrCyclicDependency — обнаружен цикл в зависимостях.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrSelfDependency — run зависит от самого себя.
	ErrSelfDependency = errors.New("run depends on itself")
)

// ValidationError — ошибка валидации графа с контекстом.
type ValidationError struct {
	RunID   string // ID run, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.RunID != "" {
		return "run " + e.RunID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(runID, field, message string, err error) *ValidationError {
	return &ValidationError{
		RunID:   runID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
