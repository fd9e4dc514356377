package scheduler

import "errors"

// ErrRunNotFound — run, указанный в задаче, не найден.
var ErrRunNotFound = errors.New("run not found")
