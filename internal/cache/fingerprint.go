// Package cache — вычисление детерминированного fingerprint'а спецификации run.
//
// Два run'а с одинаковой эффективной спецификацией в одном проекте
// получают одинаковый fingerprint. На этом держится мемоизация: вместо
// повторного исполнения создаётся клон вида CACHE.
package cache

import (
	"encoding/json"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Section — секция спецификации, участвующая в fingerprint'е.
type Section string

const (
	SectionInputs      Section = "inputs"
	SectionOutputs     Section = "outputs"
	SectionContexts    Section = "contexts"
	SectionInit        Section = "init"
	SectionConnections Section = "connections"
	SectionContainers  Section = "containers"
)

// sectionOrder — фиксированный порядок конкатенации секций.
var sectionOrder = []Section{
	SectionInputs,
	SectionOutputs,
	SectionContexts,
	SectionInit,
	SectionConnections,
	SectionContainers,
}

// Config — настройки кэша операции.
type Config struct {
	// Disable — кэш выключен.
	Disable bool

	// IO — allow-list имён inputs/outputs. nil — все.
	IO []string

	// Sections — allow-list секций. nil — все.
	Sections []Section
}

// ConfigFromSpec строит Config из секции cache скомпилированной спецификации.
func ConfigFromSpec(spec *domain.CacheSpec) *Config {
	if spec == nil {
		return nil
	}
	cfg := &Config{Disable: spec.Disable, IO: spec.IO}
	for _, s := range spec.Sections {
		cfg.Sections = append(cfg.Sections, Section(strings.ToLower(strings.TrimSpace(s))))
	}
	return cfg
}

// Sections — содержимое спецификации, из которого считается fingerprint.
type Sections struct {
	Inputs      []domain.Param
	Outputs     []domain.Param
	Contexts    []domain.Param
	Init        []domain.InitStep
	Connections []string
	Containers  []domain.Container
}

// SectionsFromSpec собирает Sections из скомпилированной операции.
// Основной контейнер и sidecar'ы попадают в одну секцию containers.
func SectionsFromSpec(op *domain.OperationSpec) Sections {
	s := Sections{
		Inputs:      op.Inputs,
		Outputs:     op.Outputs,
		Contexts:    op.Contexts,
		Init:        op.Init,
		Connections: op.Connections,
	}
	if op.Container != nil {
		s.Containers = append(s.Containers, *op.Container)
	}
	s.Containers = append(s.Containers, op.Sidecars...)
	return s
}

// ComputeFingerprint возвращает fingerprint спецификации и true,
// либо ("", false), если кэш выключен или ни одна секция не дала содержимого.
//
// namespace — владелец (проект), componentSalt — необязательная соль компонента.
func ComputeFingerprint(cfg *Config, in Sections, namespace uuid.UUID, componentSalt string) (string, bool) {
	if cfg != nil && cfg.Disable {
		return "", false
	}

	var b strings.Builder
	for _, section := range sectionOrder {
		if !cfg.includes(section) {
			continue
		}
		parts := in.render(section, cfg)
		if len(parts) == 0 {
			continue
		}
		sort.Strings(parts)
		b.WriteString(string(section))
		b.WriteString(":")
		b.WriteString(strings.Join(parts, ";"))
		b.WriteString("|")
	}

	if b.Len() == 0 {
		return "", false
	}

	return uuid.NewSHA1(namespace, []byte(componentSalt+b.String())).String(), true
}

// includes — входит ли секция в allow-list.
func (c *Config) includes(s Section) bool {
	if c == nil || c.Sections == nil {
		return true
	}
	return slices.Contains(c.Sections, s)
}

// allowsIO — входит ли имя input/output в allow-list.
func (c *Config) allowsIO(name string) bool {
	if c == nil || c.IO == nil {
		return true
	}
	return slices.Contains(c.IO, name)
}

// render возвращает неотсортированные канонические строки секции.
func (s Sections) render(section Section, cfg *Config) []string {
	var parts []string
	switch section {
	case SectionInputs:
		parts = renderParams(s.Inputs, cfg.allowsIO)
	case SectionOutputs:
		parts = renderParams(s.Outputs, cfg.allowsIO)
	case SectionContexts:
		parts = renderParams(s.Contexts, func(string) bool { return true })
	case SectionInit:
		for _, step := range s.Init {
			step.Artifacts = sortedCopy(step.Artifacts)
			step.Paths = sortedCopy(step.Paths)
			parts = append(parts, canonical(step))
		}
	case SectionConnections:
		for _, c := range s.Connections {
			if c != "" {
				parts = append(parts, c)
			}
		}
	case SectionContainers:
		for _, c := range s.Containers {
			parts = append(parts, canonical(c))
		}
	}
	return parts
}

func renderParams(params []domain.Param, allow func(string) bool) []string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		if !allow(p.Name) {
			continue
		}
		parts = append(parts, p.Name+"="+canonical(p.Value))
	}
	return parts
}

// canonical сериализует значение в JSON. Ключи map'ов encoding/json сортирует сам.
func canonical(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return in
	}
	out := slices.Clone(in)
	sort.Strings(out)
	return out
}
