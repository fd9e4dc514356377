package tasks

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Name — имя задачи.
type Name string

const (
	Prepare      Name = "scheduler.prepare"
	Start        Name = "scheduler.start"
	Stop         Name = "scheduler.stop"
	SetArtifacts Name = "scheduler.set_artifacts"
	Built        Name = "scheduler.built"
	NotifyDone   Name = "scheduler.notify_done"
	Reconcile    Name = "scheduler.reconcile"
)

// String возвращает строковое представление Name.
func (n Name) String() string {
	return string(n)
}

// Payload — аргументы задачи. Заполняются только поля, нужные конкретной задаче.
type Payload struct {
	// RunID — run, над которым выполняется операция (для reconcile — pipeline).
	RunID uuid.UUID `json:"run_id"`

	// Eager — синхронное исполнение дальнейших шагов (Prepare → Start).
	Eager bool `json:"eager,omitempty"`

	// UpdateStatus / Clean — параметры Stop.
	UpdateStatus bool `json:"update_status,omitempty"`
	Clean        bool `json:"clean,omitempty"`

	// Artifacts — параметры SetArtifacts.
	Artifacts []domain.ArtifactInput `json:"artifacts,omitempty"`
}

// Validate проверяет обязательные поля.
func (p Payload) Validate() error {
	if p.RunID == uuid.Nil {
		return ErrInvalidPayload
	}
	return nil
}

// Options — параметры постановки задачи.
type Options struct {
	// Delay — отложенное исполнение (через очередь tasks.delayed).
	Delay time.Duration

	// Priority — приоритет в очереди (0..10).
	Priority uint8

	// Eager — выполнить сразу, минуя очередь.
	Eager bool
}
