package livestate

import "errors"

var (
	// ErrDeletionInProgress — run уже удаляется, live state необратим.
	ErrDeletionInProgress = errors.New("run deletion in progress")

	// ErrNotMarkedForDeletion — подтверждать удаление можно только после Delete.
	ErrNotMarkedForDeletion = errors.New("run is not marked for deletion")
)
