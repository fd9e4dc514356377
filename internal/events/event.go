package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// ActorSystemID — идентификатор системного актора.
var ActorSystemID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// ActorSystemName — имя системного актора.
const ActorSystemName = "system"

// Actor — кто вызвал мутацию.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// SystemActor возвращает системного актора.
func SystemActor() Actor {
	return Actor{ID: ActorSystemID, Name: ActorSystemName}
}

// Attributes — фиксированный набор атрибутов события.
type Attributes struct {
	RunID          uuid.UUID              `json:"run_id"`
	ProjectID      uuid.UUID              `json:"project_id"`
	PipelineID     *uuid.UUID             `json:"pipeline_id,omitempty"`
	Status         domain.RunStatus       `json:"status,omitempty"`
	PreviousStatus domain.RunStatus       `json:"previous_status,omitempty"`
	Eager          bool                   `json:"eager,omitempty"`
	Artifacts      []domain.ArtifactInput `json:"artifacts,omitempty"`
	Reason         string                 `json:"reason,omitempty"`
	Message        string                 `json:"message,omitempty"`
}

// AttributesFromRun заполняет идентификаторы и статус из run.
func AttributesFromRun(run *domain.Run) Attributes {
	return Attributes{
		RunID:      run.ID,
		ProjectID:  run.ProjectID,
		PipelineID: run.PipelineID,
		Status:     run.Status,
	}
}

// has проверяет, задан ли атрибут.
func (a *Attributes) has(f Field) bool {
	switch f {
	case FieldRunID:
		return a.RunID != uuid.Nil
	case FieldProjectID:
		return a.ProjectID != uuid.Nil
	case FieldPipelineID:
		return a.PipelineID != nil
	case FieldStatus:
		return a.Status != ""
	case FieldPreviousStatus:
		return a.PreviousStatus != ""
	case FieldArtifacts:
		return len(a.Artifacts) > 0
	case FieldReason:
		return a.Reason != ""
	case FieldMessage:
		return a.Message != ""
	default:
		return false
	}
}

// Event — записанное событие.
type Event struct {
	ID         uuid.UUID  `json:"id"`
	Type       EventType  `json:"type"`
	Attributes Attributes `json:"attributes"`
	Actor      Actor      `json:"actor"`
	CreatedAt  time.Time  `json:"created_at"`

	// Dispatched — событие уже отдано локальному executor'у записавшего
	// процесса. Consumer очереди events.executor такие события пропускает.
	Dispatched bool `json:"dispatched,omitempty"`

	// Run — снимок изменённого run. Передаётся только в in-process sink.
	Run *domain.Run `json:"-"`
}

// Option — опция построения события.
type Option func(*Event)

// WithRun прикладывает снимок run к событию.
func WithRun(run *domain.Run) Option {
	return func(e *Event) {
		e.Run = run
	}
}

// WithActor задаёт актора события.
func WithActor(id uuid.UUID, name string) Option {
	return func(e *Event) {
		e.Actor = Actor{ID: id, Name: name}
	}
}

// New строит событие и проверяет обязательные атрибуты.
// Без актора подставляется системный.
func New(t EventType, attrs Attributes, opts ...Option) (Event, error) {
	def, ok := registry[t]
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrUnknownEventType, t)
	}

	for _, f := range def.Required {
		if !attrs.has(f) {
			return Event{}, fmt.Errorf("%s: %w: %s", t, ErrMissingAttribute, f)
		}
	}

	e := Event{
		ID:         uuid.New(),
		Type:       t,
		Attributes: attrs,
		CreatedAt:  time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	if e.Actor.ID == uuid.Nil {
		e.Actor = SystemActor()
	}

	return e, nil
}
