package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — единица планирования: job, service или pipeline (dag/matrix/schedule).
//
// Run создаётся API-слоем в статусе CREATED и дальше продвигается
// Scheduling Manager'ом. Ссылки на другие runs (pipeline, controller, original)
// хранятся только как ID — объекты всегда перечитываются из хранилища.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// ProjectID — проект-владелец. Используется как namespace для fingerprint'ов.
	ProjectID uuid.UUID `json:"project_id"`

	Name string  `json:"name"`
	Kind RunKind `json:"kind"`

	// Status — текущий статус, StatusConditions — история условий.
	Status           RunStatus         `json:"status"`
	StatusConditions []StatusCondition `json:"status_conditions,omitempty"`

	// Pending — гейт (approval/upload/cache/build). Пусто — гейта нет.
	Pending PendingState `json:"pending,omitempty"`

	LiveState  LiveState  `json:"live_state"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`

	ManagedBy ManagedBy `json:"managed_by"`

	// RawContent — спецификация в том виде, в котором её прислал пользователь.
	// Content — скомпилированная спецификация (JSON).
	RawContent string `json:"raw_content,omitempty"`
	Content    string `json:"content,omitempty"`

	// MetaInfo — свободный JSON (флаги eager, concurrency, max_budget и т.д.).
	MetaInfo map[string]any `json:"meta_info,omitempty"`

	// PipelineID / ControllerID — членство в DAG/matrix/schedule.
	PipelineID   *uuid.UUID `json:"pipeline_id,omitempty"`
	ControllerID *uuid.UUID `json:"controller_id,omitempty"`

	// OriginalID + CloningKind — происхождение клона.
	OriginalID  *uuid.UUID  `json:"original_id,omitempty"`
	CloningKind CloningKind `json:"cloning_kind,omitempty"`

	// ComponentState — fingerprint эффективной спецификации (для кэша).
	ComponentState string `json:"component_state,omitempty"`

	// Производные поля, пересчитываются из истории условий.
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	WaitTime   time.Duration `json:"wait_time,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ключи MetaInfo, которые читает ядро.
const (
	MetaEager       = "eager"
	MetaConcurrency = "concurrency"
	MetaMaxBudget   = "max_budget"
)

// IsManaged возвращает true, если исполнением управляет агент платформы.
func (r *Run) IsManaged() bool {
	return r.ManagedBy == ManagedByAgent
}

// IsDone возвращает true, если run в финальном статусе.
func (r *Run) IsDone() bool {
	return r.Status.IsDone()
}

// IsEager — флаг синхронного исполнения (sandbox / локальный режим).
func (r *Run) IsEager() bool {
	v, ok := r.MetaInfo[MetaEager].(bool)
	return ok && v
}

// IsPipelineChild — run принадлежит pipeline или controller.
func (r *Run) IsPipelineChild() bool {
	return r.PipelineID != nil || r.ControllerID != nil
}

// LastCondition возвращает последнее условие истории или nil.
func (r *Run) LastCondition() *StatusCondition {
	if len(r.StatusConditions) == 0 {
		return nil
	}
	return &r.StatusConditions[len(r.StatusConditions)-1]
}

// Concurrency возвращает лимит параллельности pipeline (-1 — без лимита).
func (r *Run) Concurrency() int {
	if v, ok := metaInt(r.MetaInfo, MetaConcurrency); ok {
		return v
	}
	return -1
}

// MaxBudget возвращает бюджет pipeline (максимум дочерних run'ов) или nil.
func (r *Run) MaxBudget() *int {
	if v, ok := metaInt(r.MetaInfo, MetaMaxBudget); ok {
		return &v
	}
	return nil
}

// SetMeta устанавливает значение в MetaInfo.
func (r *Run) SetMeta(key string, value any) {
	if r.MetaInfo == nil {
		r.MetaInfo = make(map[string]any)
	}
	r.MetaInfo[key] = value
}

// metaInt читает целое из MetaInfo. После JSON числа приходят как float64.
func metaInt(meta map[string]any, key string) (int, bool) {
	switch v := meta[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
