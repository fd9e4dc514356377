// Package compiler — компиляция пользовательской спецификации операции.
//
// На вход принимается YAML или JSON. Спецификация проверяется по JSON Schema,
// дополняется значениями по умолчанию и сериализуется в каноническую JSON-форму,
// которая сохраняется в Run.Content.
package compiler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"sigs.k8s.io/yaml"

	"github.com/shaiso/Conveyor/internal/domain"
)

// CurrentVersion — версия формата, подставляемая по умолчанию.
const CurrentVersion = "1.1"

// ErrInvalidSpec — спецификация не прошла разбор или валидацию.
var ErrInvalidSpec = errors.New("invalid operation spec")

// Compiler компилирует спецификации операций.
type Compiler struct {
	schema *jsonschema.Schema
}

// New создаёт Compiler со встроенной схемой.
func New() (*Compiler, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020

	if err := c.AddResource("operation.json", strings.NewReader(operationSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add operation schema: %w", err)
	}
	schema, err := c.Compile("operation.json")
	if err != nil {
		return nil, fmt.Errorf("compile operation schema: %w", err)
	}
	return &Compiler{schema: schema}, nil
}

// Compile разбирает, проверяет и нормализует спецификацию.
func (c *Compiler) Compile(_ context.Context, raw string) (*domain.CompiledSpec, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: empty content", ErrInvalidSpec)
	}

	data, err := yaml.YAMLToJSON([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	if err := c.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSpec, describe(err))
	}

	var op domain.OperationSpec
	if err := json.Unmarshal(data, &op); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	applyDefaults(&op)

	content, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("marshal compiled spec: %w", err)
	}

	return &domain.CompiledSpec{Operation: op, Content: string(content)}, nil
}

// applyDefaults подставляет значения по умолчанию.
func applyDefaults(op *domain.OperationSpec) {
	if op.Version == "" {
		op.Version = CurrentVersion
	}
	if op.Container != nil && op.Container.Name == "" {
		op.Container.Name = "main"
	}
	if op.Kind == domain.KindService && op.Replicas == nil {
		one := int32(1)
		op.Replicas = &one
	}
	if op.Cache != nil {
		for i, s := range op.Cache.Sections {
			op.Cache.Sections[i] = strings.ToLower(s)
		}
	}
}

// describe собирает сообщения ошибки валидации в одну строку.
func describe(err error) string {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return err.Error()
	}
	messages := collect(verr)
	if len(messages) == 0 {
		return verr.Error()
	}
	return strings.Join(messages, "; ")
}

func collect(verr *jsonschema.ValidationError) []string {
	var out []string
	if len(verr.Causes) == 0 && verr.Message != "" {
		loc := verr.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		out = append(out, loc+": "+verr.Message)
	}
	for _, cause := range verr.Causes {
		out = append(out, collect(cause)...)
	}
	return out
}
