package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	CREATED → COMPILED → QUEUED → STARTING → RUNNING → SUCCEEDED
//	                                                 ↘ FAILED
//	                                                 ↘ STOPPING → STOPPED
//	                   (cache hit) → SKIPPED
//	      (upstream failed) → UPSTREAM_FAILED
type RunStatus string

const (
	StatusCreated        RunStatus = "created"
	StatusResuming       RunStatus = "resuming"
	StatusOnSchedule     RunStatus = "on_schedule"
	StatusCompiled       RunStatus = "compiled"
	StatusQueued         RunStatus = "queued"
	StatusScheduled      RunStatus = "scheduled"
	StatusStarting       RunStatus = "starting"
	StatusRunning        RunStatus = "running"
	StatusProcessing     RunStatus = "processing"
	StatusStopping       RunStatus = "stopping"
	StatusFailed         RunStatus = "failed"
	StatusStopped        RunStatus = "stopped"
	StatusSucceeded      RunStatus = "succeeded"
	StatusSkipped        RunStatus = "skipped"
	StatusWarning        RunStatus = "warning"
	StatusUnschedulable  RunStatus = "unschedulable"
	StatusUpstreamFailed RunStatus = "upstream_failed"
	StatusRetrying       RunStatus = "retrying"
	StatusUnknown        RunStatus = "unknown"
	StatusDone           RunStatus = "done"
)

// doneStatuses — финальные статусы. Из них run выходит только принудительно (force).
var doneStatuses = map[RunStatus]bool{
	StatusSucceeded:      true,
	StatusFailed:         true,
	StatusUpstreamFailed: true,
	StatusStopped:        true,
	StatusSkipped:        true,
	StatusDone:           true,
}

// compilableStatuses — статусы, из которых run можно (пере)компилировать.
var compilableStatuses = map[RunStatus]bool{
	StatusCreated:        true,
	StatusResuming:       true,
	StatusOnSchedule:     true,
	StatusRetrying:       true,
	StatusFailed:         true,
	StatusStopped:        true,
	StatusStopping:       true,
	StatusSkipped:        true,
	StatusUpstreamFailed: true,
}

// runningStatuses — run занят на кластере (или стоит в очереди на него).
var runningStatuses = map[RunStatus]bool{
	StatusQueued:     true,
	StatusScheduled:  true,
	StatusStarting:   true,
	StatusRunning:    true,
	StatusProcessing: true,
}

// IsDone возвращает true, если статус финальный.
func (s RunStatus) IsDone() bool {
	return doneStatuses[s]
}

// IsCompilable возвращает true, если run в этом статусе можно подготовить (Prepare).
func (s RunStatus) IsCompilable() bool {
	return compilableStatuses[s]
}

// IsRunning возвращает true для статусов "в работе".
func (s RunStatus) IsRunning() bool {
	return runningStatuses[s]
}

// IsStoppable возвращает true, если run ещё можно остановить.
func (s RunStatus) IsStoppable() bool {
	return !s.IsDone()
}

// IsSuccessful — run завершился без ошибки (успех или пропуск по кэшу).
func (s RunStatus) IsSuccessful() bool {
	return s == StatusSucceeded || s == StatusSkipped
}

// IsFailed — run завершился неуспешно.
func (s RunStatus) IsFailed() bool {
	return s == StatusFailed || s == StatusUpstreamFailed
}

// String возвращает строковое представление RunStatus.
func (s RunStatus) String() string {
	return string(s)
}

// DoneStatuses возвращает список финальных статусов (для фильтров в запросах).
func DoneStatuses() []RunStatus {
	return []RunStatus{
		StatusSucceeded,
		StatusFailed,
		StatusUpstreamFailed,
		StatusStopped,
		StatusSkipped,
		StatusDone,
	}
}
