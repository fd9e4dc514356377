package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoContent — у run нет скомпилированной спецификации.
var ErrNoContent = errors.New("run has no compiled content")

// OperationSpec — скомпилированная спецификация операции.
//
// Это результат работы компилятора: пользовательский YAML/JSON после валидации
// и подстановки значений по умолчанию. Сериализованная форма хранится в Run.Content.
type OperationSpec struct {
	// Version — версия формата спецификации.
	Version string `json:"version,omitempty"`

	Kind        RunKind `json:"kind"`
	Name        string  `json:"name,omitempty"`
	Description string  `json:"description,omitempty"`

	// Inputs / Outputs — параметры операции.
	Inputs  []Param `json:"inputs,omitempty"`
	Outputs []Param `json:"outputs,omitempty"`

	// Contexts — значения, которые резолвер подставил из окружения (globals, project и т.д.).
	Contexts []Param `json:"contexts,omitempty"`

	// Init — шаги инициализации (подтягивание артефактов, git, файлов).
	Init []InitStep `json:"init,omitempty"`

	// Connections — имена подключений (хранилища, секреты).
	Connections []string `json:"connections,omitempty"`

	// Container — основной контейнер для job/service.
	Container *Container `json:"container,omitempty"`

	// Sidecars — дополнительные контейнеры.
	Sidecars []Container `json:"sidecars,omitempty"`

	// Ports / Replicas — только для service.
	Ports    []int32 `json:"ports,omitempty"`
	Replicas *int32  `json:"replicas,omitempty"`

	// Cache — настройки мемоизации.
	Cache *CacheSpec `json:"cache,omitempty"`

	// Concurrency / MaxBudget — только для pipeline (dag/matrix/schedule).
	Concurrency *int `json:"concurrency,omitempty"`
	MaxBudget   *int `json:"max_budget,omitempty"`

	// Component — хэш компонента, используется как соль fingerprint'а.
	Component string `json:"component,omitempty"`
}

// Param — параметр операции.
type Param struct {
	Name       string `json:"name"`
	Value      any    `json:"value,omitempty"`
	IsOptional bool   `json:"is_optional,omitempty"`
	Connection string `json:"connection,omitempty"`
}

// InitStep — шаг инициализации контейнера.
type InitStep struct {
	Connection string     `json:"connection,omitempty"`
	Artifacts  []string   `json:"artifacts,omitempty"`
	Paths      []string   `json:"paths,omitempty"`
	Git        string     `json:"git,omitempty"`
	Container  *Container `json:"container,omitempty"`
}

// Container — описание контейнера.
type Container struct {
	Name      string            `json:"name,omitempty"`
	Image     string            `json:"image"`
	Command   []string          `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Resources *Resources        `json:"resources,omitempty"`
}

// Resources — запросы/лимиты ресурсов (в нотации Kubernetes).
type Resources struct {
	CPU    string `json:"cpu,omitempty"`
	Memory string `json:"memory,omitempty"`
	GPU    string `json:"gpu,omitempty"`
}

// CacheSpec — настройки кэширования.
type CacheSpec struct {
	// Disable — кэш выключен для операции.
	Disable bool `json:"disable,omitempty"`

	// TTL — время жизни кэша в секундах (0 — бессрочно).
	TTL int `json:"ttl,omitempty"`

	// IO — allow-list имён inputs/outputs. Пусто — все.
	IO []string `json:"io,omitempty"`

	// Sections — allow-list секций (inputs, outputs, contexts, init, connections, containers).
	// Пусто — все секции.
	Sections []string `json:"sections,omitempty"`
}

// CompiledSpec — результат компиляции: структура + каноническая JSON-форма.
type CompiledSpec struct {
	Operation OperationSpec
	Content   string
}

// ParseOperation декодирует скомпилированную спецификацию из Run.Content.
func ParseOperation(content string) (*OperationSpec, error) {
	if content == "" {
		return nil, ErrNoContent
	}
	var op OperationSpec
	if err := json.Unmarshal([]byte(content), &op); err != nil {
		return nil, fmt.Errorf("decode operation: %w", err)
	}
	return &op, nil
}
