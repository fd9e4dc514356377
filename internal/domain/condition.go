package domain

import "time"

// ConditionTrue — значение StatusCondition.Status для активного условия.
const ConditionTrue = "True"

// StatusCondition — запись в истории статусов run.
//
// Type совпадает со статусом, в который run переводится этим условием.
type StatusCondition struct {
	Type               RunStatus      `json:"type"`
	Status             string         `json:"status"`
	Reason             string         `json:"reason,omitempty"`
	Message            string         `json:"message,omitempty"`
	LastUpdateTime     time.Time      `json:"last_update_time"`
	LastTransitionTime time.Time      `json:"last_transition_time"`
	Meta               map[string]any `json:"meta,omitempty"`
}

// NewCondition создаёт условие с текущим временем.
func NewCondition(status RunStatus, reason, message string) StatusCondition {
	now := time.Now().UTC()
	return StatusCondition{
		Type:               status,
		Status:             ConditionTrue,
		Reason:             reason,
		Message:            message,
		LastUpdateTime:     now,
		LastTransitionTime: now,
	}
}

// Причины (reason), которые выставляет ядро оркестрации.
const (
	ReasonCompilationError = "CompilationError"
	ReasonCompiled         = "Compiled"
	ReasonQueued           = "Queued"
	ReasonSubmitError      = "ClusterSubmitError"
	ReasonStopRequested    = "StopRequested"
	ReasonStopped          = "Stopped"
	ReasonCacheHit         = "CacheHit"
	ReasonBuildDeleted     = "BuildDeleted"
	ReasonUpstreamFailed   = "UpstreamFailed"
	ReasonPipelineRunning  = "PipelineRunning"
	ReasonPipelineDone     = "PipelineDone"
	ReasonParentDeleted    = "ParentDeleted"
	ReasonParentArchived   = "ParentArchived"
	ReasonInvalidGraph     = "InvalidGraph"
	ReasonBudgetExhausted  = "BudgetExhausted"
)
