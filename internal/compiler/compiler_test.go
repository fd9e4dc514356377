package compiler

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Conveyor/internal/domain"
)

func newCompiler(t *testing.T) *Compiler {
	t.Helper()
	c, err := New()
	require.NoError(t, err)
	return c
}

const jobYAML = `
kind: job
name: train
inputs:
  - name: lr
    value: 0.01
container:
  image: python:3.12
  command: [python, train.py]
cache:
  ttl: 3600
  sections: [Inputs, containers]
`

func TestCompile_YAML(t *testing.T) {
	spec, err := newCompiler(t).Compile(context.Background(), jobYAML)
	require.NoError(t, err)

	op := spec.Operation
	assert.Equal(t, domain.KindJob, op.Kind)
	assert.Equal(t, CurrentVersion, op.Version)
	require.NotNil(t, op.Container)
	assert.Equal(t, "main", op.Container.Name)
	assert.Equal(t, []string{"inputs", "containers"}, op.Cache.Sections)
	assert.Equal(t, 3600, op.Cache.TTL)

	var decoded domain.OperationSpec
	require.NoError(t, json.Unmarshal([]byte(spec.Content), &decoded))
	assert.Equal(t, op.Name, decoded.Name)
}

func TestCompile_JSONService(t *testing.T) {
	raw := `{"kind": "service", "container": {"image": "nginx"}, "ports": [80]}`

	spec, err := newCompiler(t).Compile(context.Background(), raw)
	require.NoError(t, err)

	require.NotNil(t, spec.Operation.Replicas)
	assert.Equal(t, int32(1), *spec.Operation.Replicas)
}

func TestCompile_Pipeline(t *testing.T) {
	spec, err := newCompiler(t).Compile(context.Background(), "kind: dag\nconcurrency: 2\nmax_budget: 10\n")
	require.NoError(t, err)

	require.NotNil(t, spec.Operation.Concurrency)
	assert.Equal(t, 2, *spec.Operation.Concurrency)
	assert.Nil(t, spec.Operation.Container)
}

func TestCompile_Errors(t *testing.T) {
	tests := map[string]string{
		"empty":             "   ",
		"bad yaml":          "kind: [job",
		"unknown kind":      "kind: spaceship",
		"job without image": "kind: job\n",
		"unknown field":     "kind: dag\nflavour: vanilla\n",
		"bad port":          "kind: service\ncontainer: {image: x}\nports: [70000]\n",
		"bad cache section": "kind: job\ncontainer: {image: x}\ncache: {sections: [secrets]}\n",
	}

	c := newCompiler(t)
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := c.Compile(context.Background(), raw)
			assert.ErrorIs(t, err, ErrInvalidSpec)
		})
	}
}

func TestCompile_ErrorMessageNamesLocation(t *testing.T) {
	_, err := newCompiler(t).Compile(context.Background(), "kind: job\ncontainer: {image: 5}\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/container/image")
}
