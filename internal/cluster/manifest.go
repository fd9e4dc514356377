package cluster

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Label'ы объектов кластера.
const (
	LabelManagedBy = "app.kubernetes.io/managed-by"
	LabelRunID     = "conveyor.io/run-id"
	LabelProjectID = "conveyor.io/project-id"
	LabelKind      = "conveyor.io/kind"

	managedByValue = "conveyor"
	gpuResource    = corev1.ResourceName("nvidia.com/gpu")
)

// Manifest — набор объектов кластера для одного run.
type Manifest struct {
	RunID     uuid.UUID
	Kind      domain.RunKind
	Namespace string

	Job        *batchv1.Job
	Deployment *appsv1.Deployment
	Service    *corev1.Service
}

// ConverterConfig — параметры построения манифестов.
type ConverterConfig struct {
	Namespace          string
	ServiceAccountName string
	ImagePullSecrets   []string

	// BackoffLimit — повторы pod'а job'а. Повторы run'ов — забота планировщика.
	BackoffLimit int32

	// TTLSecondsAfterFinished — время жизни завершённого Job.
	TTLSecondsAfterFinished int32
}

// Converter строит Manifest из скомпилированной спецификации.
type Converter struct {
	cfg ConverterConfig
}

// NewConverter создаёт Converter.
func NewConverter(cfg ConverterConfig) *Converter {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.TTLSecondsAfterFinished <= 0 {
		cfg.TTLSecondsAfterFinished = 3600
	}
	return &Converter{cfg: cfg}
}

// Convert строит манифест для job или service.
func (c *Converter) Convert(run *domain.Run, spec *domain.OperationSpec) (*Manifest, error) {
	if spec.Container == nil || spec.Container.Image == "" {
		return nil, ErrNoContainer
	}

	labels := RunLabels(run)
	pod, err := c.podSpec(run, spec)
	if err != nil {
		return nil, err
	}
	template := corev1.PodTemplateSpec{
		ObjectMeta: metav1.ObjectMeta{Labels: labels},
		Spec:       pod,
	}
	meta := metav1.ObjectMeta{
		Name:      ResourceName(run),
		Namespace: c.cfg.Namespace,
		Labels:    labels,
	}

	m := &Manifest{RunID: run.ID, Kind: run.Kind, Namespace: c.cfg.Namespace}

	switch run.Kind {
	case domain.KindJob:
		backoff := c.cfg.BackoffLimit
		ttl := c.cfg.TTLSecondsAfterFinished
		template.Spec.RestartPolicy = corev1.RestartPolicyNever
		m.Job = &batchv1.Job{
			ObjectMeta: meta,
			Spec: batchv1.JobSpec{
				Template:                template,
				BackoffLimit:            &backoff,
				TTLSecondsAfterFinished: &ttl,
			},
		}

	case domain.KindService:
		replicas := int32(1)
		if spec.Replicas != nil {
			replicas = *spec.Replicas
		}
		template.Spec.RestartPolicy = corev1.RestartPolicyAlways
		m.Deployment = &appsv1.Deployment{
			ObjectMeta: meta,
			Spec: appsv1.DeploymentSpec{
				Replicas: &replicas,
				Selector: &metav1.LabelSelector{MatchLabels: map[string]string{LabelRunID: run.ID.String()}},
				Template: template,
			},
		}
		if len(spec.Ports) > 0 {
			m.Service = &corev1.Service{
				ObjectMeta: meta,
				Spec: corev1.ServiceSpec{
					Selector: map[string]string{LabelRunID: run.ID.String()},
					Ports:    servicePorts(spec.Ports),
				},
			}
		}

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, run.Kind)
	}

	return m, nil
}

// podSpec строит spec pod'а: основной контейнер и sidecar'ы.
func (c *Converter) podSpec(run *domain.Run, spec *domain.OperationSpec) (corev1.PodSpec, error) {
	main, err := container(*spec.Container, "main", run, spec)
	if err != nil {
		return corev1.PodSpec{}, err
	}
	containers := []corev1.Container{main}

	for i, sc := range spec.Sidecars {
		side, err := container(sc, fmt.Sprintf("sidecar-%d", i), run, nil)
		if err != nil {
			return corev1.PodSpec{}, err
		}
		containers = append(containers, side)
	}

	pod := corev1.PodSpec{
		Containers:         containers,
		ServiceAccountName: c.cfg.ServiceAccountName,
	}
	for _, secret := range c.cfg.ImagePullSecrets {
		pod.ImagePullSecrets = append(pod.ImagePullSecrets, corev1.LocalObjectReference{Name: secret})
	}
	return pod, nil
}

// container строит контейнер. Для основного (spec != nil) inputs передаются через env.
func container(src domain.Container, fallbackName string, run *domain.Run, spec *domain.OperationSpec) (corev1.Container, error) {
	name := src.Name
	if name == "" {
		name = fallbackName
	}

	env := []corev1.EnvVar{
		{Name: "CONVEYOR_RUN_ID", Value: run.ID.String()},
		{Name: "CONVEYOR_PROJECT_ID", Value: run.ProjectID.String()},
	}
	keys := make([]string, 0, len(src.Env))
	for k := range src.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, corev1.EnvVar{Name: k, Value: src.Env[k]})
	}
	if spec != nil {
		for _, p := range spec.Inputs {
			if p.Value == nil {
				continue
			}
			env = append(env, corev1.EnvVar{Name: inputEnvName(p.Name), Value: fmt.Sprint(p.Value)})
		}
	}

	resources, err := resourceRequirements(src.Resources)
	if err != nil {
		return corev1.Container{}, err
	}

	return corev1.Container{
		Name:            SanitizeName(name),
		Image:           src.Image,
		Command:         src.Command,
		Args:            src.Args,
		Env:             env,
		Resources:       resources,
		ImagePullPolicy: corev1.PullIfNotPresent,
	}, nil
}

// resourceRequirements переводит Resources в requests = limits.
func resourceRequirements(r *domain.Resources) (corev1.ResourceRequirements, error) {
	if r == nil {
		return corev1.ResourceRequirements{}, nil
	}

	list := corev1.ResourceList{}
	for name, value := range map[corev1.ResourceName]string{
		corev1.ResourceCPU:    r.CPU,
		corev1.ResourceMemory: r.Memory,
		gpuResource:           r.GPU,
	} {
		if value == "" {
			continue
		}
		q, err := resource.ParseQuantity(value)
		if err != nil {
			return corev1.ResourceRequirements{}, fmt.Errorf("%w: %s=%q: %v", ErrInvalidResources, name, value, err)
		}
		list[name] = q
	}
	if len(list) == 0 {
		return corev1.ResourceRequirements{}, nil
	}
	return corev1.ResourceRequirements{Requests: list, Limits: list.DeepCopy()}, nil
}

func servicePorts(ports []int32) []corev1.ServicePort {
	out := make([]corev1.ServicePort, 0, len(ports))
	for _, p := range ports {
		out = append(out, corev1.ServicePort{
			Name:       fmt.Sprintf("port-%d", p),
			Port:       p,
			TargetPort: intstr.FromInt32(p),
		})
	}
	return out
}

// RunLabels возвращает label'ы объектов run'а.
func RunLabels(run *domain.Run) map[string]string {
	return map[string]string{
		LabelManagedBy: managedByValue,
		LabelRunID:     run.ID.String(),
		LabelProjectID: run.ProjectID.String(),
		LabelKind:      string(run.Kind),
	}
}

// RunSelector возвращает label selector объектов run'а.
func RunSelector(runID uuid.UUID) string {
	return LabelRunID + "=" + runID.String()
}

// ResourceName возвращает имя объектов run'а.
func ResourceName(run *domain.Run) string {
	return resourceName(run.Kind, run.ID)
}

func resourceName(kind domain.RunKind, runID uuid.UUID) string {
	return SanitizeName(fmt.Sprintf("conveyor-%s-%s", kind, runID))
}

func inputEnvName(name string) string {
	var b strings.Builder
	b.WriteString("CONVEYOR_INPUT_")
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// SanitizeName приводит строку к DNS-1123 label: строчные буквы, цифры, '-', до 63 символов.
func SanitizeName(name string) string {
	name = strings.ToLower(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-':
			b.WriteRune(r)
		case r == '_' || r == '.' || r == ' ':
			b.WriteRune('-')
		}
	}
	s := strings.Trim(b.String(), "-")
	if len(s) > 63 {
		s = strings.TrimRight(s[:63], "-")
	}
	return s
}
