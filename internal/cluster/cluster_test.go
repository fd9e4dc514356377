package cluster

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/shaiso/Conveyor/internal/domain"
)

func testRun(kind domain.RunKind) *domain.Run {
	return &domain.Run{ID: uuid.New(), ProjectID: uuid.New(), Kind: kind, Name: "train"}
}

func jobSpec() *domain.OperationSpec {
	return &domain.OperationSpec{
		Kind: domain.KindJob,
		Inputs: []domain.Param{
			{Name: "learning-rate", Value: 0.01},
			{Name: "unset"},
		},
		Container: &domain.Container{
			Image:     "python:3.12",
			Command:   []string{"python", "train.py"},
			Env:       map[string]string{"B": "2", "A": "1"},
			Resources: &domain.Resources{CPU: "500m", Memory: "1Gi"},
		},
		Sidecars: []domain.Container{{Image: "busybox"}},
	}
}

func TestConvert_Job(t *testing.T) {
	run := testRun(domain.KindJob)
	m, err := NewConverter(ConverterConfig{}).Convert(run, jobSpec())
	require.NoError(t, err)

	require.NotNil(t, m.Job)
	assert.Nil(t, m.Deployment)
	assert.Equal(t, DefaultNamespace, m.Namespace)
	assert.Equal(t, "conveyor-job-"+run.ID.String(), m.Job.Name)
	assert.Equal(t, run.ID.String(), m.Job.Labels[LabelRunID])
	assert.Equal(t, corev1.RestartPolicyNever, m.Job.Spec.Template.Spec.RestartPolicy)

	containers := m.Job.Spec.Template.Spec.Containers
	require.Len(t, containers, 2)
	assert.Equal(t, "main", containers[0].Name)
	assert.Equal(t, "sidecar-0", containers[1].Name)

	env := map[string]string{}
	var order []string
	for _, e := range containers[0].Env {
		env[e.Name] = e.Value
		order = append(order, e.Name)
	}
	assert.Equal(t, run.ID.String(), env["CONVEYOR_RUN_ID"])
	assert.Equal(t, "0.01", env["CONVEYOR_INPUT_LEARNING_RATE"])
	assert.NotContains(t, env, "CONVEYOR_INPUT_UNSET")
	assert.Equal(t, []string{"CONVEYOR_RUN_ID", "CONVEYOR_PROJECT_ID", "A", "B", "CONVEYOR_INPUT_LEARNING_RATE"}, order)

	cpu := containers[0].Resources.Limits[corev1.ResourceCPU]
	assert.Equal(t, "500m", cpu.String())
}

func TestConvert_Service(t *testing.T) {
	run := testRun(domain.KindService)
	replicas := int32(3)
	spec := &domain.OperationSpec{
		Kind:      domain.KindService,
		Container: &domain.Container{Image: "nginx"},
		Ports:     []int32{8080},
		Replicas:  &replicas,
	}

	m, err := NewConverter(ConverterConfig{Namespace: "ml"}).Convert(run, spec)
	require.NoError(t, err)

	require.NotNil(t, m.Deployment)
	require.NotNil(t, m.Service)
	assert.Nil(t, m.Job)
	assert.Equal(t, int32(3), *m.Deployment.Spec.Replicas)
	assert.Equal(t, "ml", m.Deployment.Namespace)
	assert.Equal(t, int32(8080), m.Service.Spec.Ports[0].Port)
	assert.Equal(t, run.ID.String(), m.Service.Spec.Selector[LabelRunID])
}

func TestConvert_Errors(t *testing.T) {
	c := NewConverter(ConverterConfig{})

	_, err := c.Convert(testRun(domain.KindJob), &domain.OperationSpec{})
	assert.ErrorIs(t, err, ErrNoContainer)

	_, err = c.Convert(testRun(domain.KindDAG), jobSpec())
	assert.ErrorIs(t, err, ErrUnsupportedKind)

	bad := jobSpec()
	bad.Container.Resources = &domain.Resources{Memory: "lots"}
	_, err = c.Convert(testRun(domain.KindJob), bad)
	assert.ErrorIs(t, err, ErrInvalidResources)
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "my-run-1", SanitizeName("My_Run.1"))
	assert.Equal(t, "abc", SanitizeName("--abc--"))
	long := SanitizeName(strings.Repeat("a", 100))
	assert.Len(t, long, 63)
}

func TestExecutor_SubmitIdempotent(t *testing.T) {
	client := fake.NewSimpleClientset()
	e := NewExecutor(Config{Client: client})
	run := testRun(domain.KindJob)

	m, err := NewConverter(ConverterConfig{}).Convert(run, jobSpec())
	require.NoError(t, err)

	require.NoError(t, e.Submit(context.Background(), m))
	require.NoError(t, e.Submit(context.Background(), m), "second submit is not an error")

	job, err := client.BatchV1().Jobs(DefaultNamespace).Get(context.Background(), ResourceName(run), metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, run.ID.String(), job.Labels[LabelRunID])
}

func TestExecutor_SubmitError(t *testing.T) {
	client := fake.NewSimpleClientset()
	client.PrependReactor("create", "jobs", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewForbidden(schema.GroupResource{Group: "batch", Resource: "jobs"}, "x", errors.New("quota exceeded"))
	})
	e := NewExecutor(Config{Client: client})

	m, err := NewConverter(ConverterConfig{}).Convert(testRun(domain.KindJob), jobSpec())
	require.NoError(t, err)

	err = e.Submit(context.Background(), m)
	require.Error(t, err)
	assert.True(t, apierrors.IsForbidden(err))
}

func TestExecutor_StopService(t *testing.T) {
	client := fake.NewSimpleClientset()
	e := NewExecutor(Config{Client: client, Namespace: "ml"})
	run := testRun(domain.KindService)

	m, err := NewConverter(ConverterConfig{Namespace: "ml"}).Convert(run, &domain.OperationSpec{
		Kind: domain.KindService, Container: &domain.Container{Image: "nginx"}, Ports: []int32{80},
	})
	require.NoError(t, err)
	require.NoError(t, e.Submit(context.Background(), m))

	require.NoError(t, e.Stop(context.Background(), run.ID, domain.KindService))
	_, err = client.AppsV1().Deployments("ml").Get(context.Background(), ResourceName(run), metav1.GetOptions{})
	assert.True(t, apierrors.IsNotFound(err))

	// Повторная остановка — не ошибка
	assert.NoError(t, e.Stop(context.Background(), run.ID, domain.KindService))

	require.NoError(t, e.Clean(context.Background(), run.ID, domain.KindService))
	services, err := client.CoreV1().Services("ml").List(context.Background(), metav1.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, services.Items)
}

func TestExecutor_StopUnsupportedKind(t *testing.T) {
	e := NewExecutor(Config{Client: fake.NewSimpleClientset()})
	err := e.Stop(context.Background(), uuid.New(), domain.KindDAG)
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}
