package domain

import (
	"time"

	"github.com/google/uuid"
)

// ArtifactKind — тип артефакта.
type ArtifactKind string

const (
	ArtifactModel   ArtifactKind = "model"
	ArtifactMetric  ArtifactKind = "metric"
	ArtifactDataset ArtifactKind = "dataset"
	ArtifactFile    ArtifactKind = "file"
	ArtifactDir     ArtifactKind = "dir"
	ArtifactImage   ArtifactKind = "image"
)

// Artifact — дедуплицированная запись артефакта, ключ (Name, State).
//
// State — отпечаток содержимого/идентичности. Несколько run'ов могут ссылаться
// на один артефакт как на вход или выход — на этом держится переиспользование кэша.
type Artifact struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Kind      ArtifactKind   `json:"kind"`
	Path      string         `json:"path,omitempty"`
	State     uuid.UUID      `json:"state"`
	Summary   map[string]any `json:"summary,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Key возвращает ключ дедупликации.
func (a *Artifact) Key() ArtifactKey {
	return ArtifactKey{Name: a.Name, State: a.State}
}

// ArtifactKey — уникальный ключ артефакта.
type ArtifactKey struct {
	Name  string
	State uuid.UUID
}

// ArtifactLineage — связь артефакта с run'ом.
type ArtifactLineage struct {
	RunID      uuid.UUID `json:"run_id"`
	ArtifactID int64     `json:"artifact_id"`
	IsInput    bool      `json:"is_input"`
}

// ArtifactInput — артефакт в том виде, как его сообщает агент/SDK.
// State может быть не задан — тогда его выводит SetArtifacts.
type ArtifactInput struct {
	Name    string         `json:"name"`
	Kind    ArtifactKind   `json:"kind"`
	Path    string         `json:"path,omitempty"`
	State   *uuid.UUID     `json:"state,omitempty"`
	Summary map[string]any `json:"summary,omitempty"`
	IsInput bool           `json:"is_input,omitempty"`
}
