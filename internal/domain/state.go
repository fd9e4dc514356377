package domain

// RunKind — тип run.
type RunKind string

const (
	KindJob      RunKind = "job"
	KindService  RunKind = "service"
	KindDAG      RunKind = "dag"
	KindMatrix   RunKind = "matrix"
	KindSchedule RunKind = "schedule"
	KindTuner    RunKind = "tuner"
	KindNotifier RunKind = "notifier"
)

// IsPipeline возвращает true для run'ов, которые владеют дочерними run'ами.
func (k RunKind) IsPipeline() bool {
	switch k {
	case KindDAG, KindMatrix, KindSchedule:
		return true
	default:
		return false
	}
}

// IsClusterWorkload возвращает true, если run запускается на кластере напрямую.
func (k RunKind) IsClusterWorkload() bool {
	return k == KindJob || k == KindService
}

// LiveState — состояние записи, ортогональное статусу выполнения.
//
//	LIVE → ARCHIVED → LIVE (restore)
//	LIVE | ARCHIVED → DELETION_PROGRESSING (необратимо)
type LiveState string

const (
	LiveStateLive                LiveState = "live"
	LiveStateArchived            LiveState = "archived"
	LiveStateDeletionProgressing LiveState = "deletion_progressing"
)

// PendingState — гейт, блокирующий автоматическое продвижение дальше COMPILED.
// Пустая строка — гейта нет.
type PendingState string

const (
	PendingNone     PendingState = ""
	PendingApproval PendingState = "approval"
	PendingUpload   PendingState = "upload"
	PendingCache    PendingState = "cache"
	PendingBuild    PendingState = "build"
)

// ManagedBy — кто отвечает за исполнение спецификации run.
type ManagedBy string

const (
	ManagedByAgent ManagedBy = "agent"
	ManagedByUser  ManagedBy = "user"
	ManagedByCLI   ManagedBy = "cli"
)

// CloningKind — происхождение run, если он клон другого.
type CloningKind string

const (
	CloningNone    CloningKind = ""
	CloningRestart CloningKind = "restart"
	CloningCopy    CloningKind = "copy"
	CloningCache   CloningKind = "cache"
)
