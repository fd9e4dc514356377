package events

// EventType — тип события.
type EventType string

const (
	RunCreated      EventType = "run.created"
	RunResumed      EventType = "run.resumed"
	RunApproved     EventType = "run.approved"
	RunStopping     EventType = "run.stopping"
	RunNewArtifacts EventType = "run.new_artifacts"
	RunNewStatus    EventType = "run.new_status"
	RunDone         EventType = "run.done"
	RunDoneNotified EventType = "run.done_notified"
	RunArchived     EventType = "run.archived"
	RunRestored     EventType = "run.restored"
	RunDeleted      EventType = "run.deleted"
)

// String возвращает строковое представление EventType.
func (t EventType) String() string {
	return string(t)
}

// Field — атрибут события.
type Field int

const (
	FieldRunID Field = iota
	FieldProjectID
	FieldPipelineID
	FieldStatus
	FieldPreviousStatus
	FieldArtifacts
	FieldReason
	FieldMessage
)

// String возвращает имя атрибута (как в JSON).
func (f Field) String() string {
	switch f {
	case FieldRunID:
		return "run_id"
	case FieldProjectID:
		return "project_id"
	case FieldPipelineID:
		return "pipeline_id"
	case FieldStatus:
		return "status"
	case FieldPreviousStatus:
		return "previous_status"
	case FieldArtifacts:
		return "artifacts"
	case FieldReason:
		return "reason"
	case FieldMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Definition — статическая схема события.
type Definition struct {
	// Required — атрибуты, без которых событие не строится.
	Required []Field
}

// registry — схемы всех известных событий.
// События смены статуса не требуют ProjectID.
var registry = map[EventType]Definition{
	RunCreated:      {Required: []Field{FieldRunID, FieldProjectID}},
	RunResumed:      {Required: []Field{FieldRunID, FieldProjectID}},
	RunApproved:     {Required: []Field{FieldRunID, FieldProjectID}},
	RunStopping:     {Required: []Field{FieldRunID}},
	RunNewArtifacts: {Required: []Field{FieldRunID, FieldProjectID, FieldArtifacts}},
	RunNewStatus:    {Required: []Field{FieldRunID, FieldStatus, FieldPreviousStatus}},
	RunDone:         {Required: []Field{FieldRunID, FieldStatus}},
	RunDoneNotified: {Required: []Field{FieldRunID, FieldStatus}},
	RunArchived:     {Required: []Field{FieldRunID, FieldProjectID}},
	RunRestored:     {Required: []Field{FieldRunID, FieldProjectID}},
	RunDeleted:      {Required: []Field{FieldRunID, FieldProjectID}},
}

// Lookup возвращает схему события.
func Lookup(t EventType) (Definition, bool) {
	def, ok := registry[t]
	return def, ok
}

// Types возвращает все зарегистрированные типы.
func Types() []EventType {
	types := make([]EventType, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	return types
}
