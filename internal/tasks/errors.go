package tasks

import "errors"

var (
	// ErrUnknownTask — для имени задачи не зарегистрирован обработчик.
	ErrUnknownTask = errors.New("unknown task")

	// ErrInvalidPayload — payload задачи не содержит обязательных полей.
	ErrInvalidPayload = errors.New("invalid task payload")
)
