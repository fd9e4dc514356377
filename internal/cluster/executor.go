package cluster

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// DefaultNamespace — namespace по умолчанию.
const DefaultNamespace = "conveyor"

// Config — конфигурация Executor.
type Config struct {
	Client    kubernetes.Interface
	Namespace string

	// SubmitRPS — ограничение частоты Submit (запросов в секунду). <= 0 — без ограничения.
	SubmitRPS float64

	Logger *slog.Logger
}

// Executor создаёт и удаляет объекты run'ов в кластере.
type Executor struct {
	client    kubernetes.Interface
	namespace string
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewExecutor создаёт Executor.
func NewExecutor(cfg Config) *Executor {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.SubmitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.SubmitRPS), max(1, int(cfg.SubmitRPS)))
	}
	return &Executor{
		client:    cfg.Client,
		namespace: namespace,
		limiter:   limiter,
		logger:    logger,
	}
}

// Submit создаёт объекты манифеста. Уже существующие объекты не считаются ошибкой.
func (e *Executor) Submit(ctx context.Context, m *Manifest) (err error) {
	defer func() { observe("submit", err) }()

	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("submit rate limit: %w", err)
	}

	ns := m.Namespace
	if ns == "" {
		ns = e.namespace
	}

	if m.Job != nil {
		_, err := e.client.BatchV1().Jobs(ns).Create(ctx, m.Job, metav1.CreateOptions{})
		if err := ignoreExists(err); err != nil {
			return fmt.Errorf("create job %s: %w", m.Job.Name, err)
		}
	}
	if m.Deployment != nil {
		_, err := e.client.AppsV1().Deployments(ns).Create(ctx, m.Deployment, metav1.CreateOptions{})
		if err := ignoreExists(err); err != nil {
			return fmt.Errorf("create deployment %s: %w", m.Deployment.Name, err)
		}
	}
	if m.Service != nil {
		_, err := e.client.CoreV1().Services(ns).Create(ctx, m.Service, metav1.CreateOptions{})
		if err := ignoreExists(err); err != nil {
			return fmt.Errorf("create service %s: %w", m.Service.Name, err)
		}
	}

	e.logger.Info("run submitted to cluster", "run_id", m.RunID, "kind", m.Kind, "namespace", ns)
	return nil
}

// Stop удаляет основной объект run'а (Job или Deployment). Отсутствие объекта — не ошибка.
func (e *Executor) Stop(ctx context.Context, runID uuid.UUID, kind domain.RunKind) (err error) {
	defer func() { observe("stop", err) }()

	name := resourceName(kind, runID)
	propagation := metav1.DeletePropagationBackground
	opts := metav1.DeleteOptions{PropagationPolicy: &propagation}

	switch kind {
	case domain.KindJob:
		err = e.client.BatchV1().Jobs(e.namespace).Delete(ctx, name, opts)
	case domain.KindService:
		err = e.client.AppsV1().Deployments(e.namespace).Delete(ctx, name, opts)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
	if err := ignoreNotFound(err); err != nil {
		return fmt.Errorf("stop %s: %w", name, err)
	}

	e.logger.Info("run stopped on cluster", "run_id", runID, "kind", kind)
	return nil
}

// Clean удаляет все объекты с label'ом run'а: services, pods и оставшиеся workload'ы.
func (e *Executor) Clean(ctx context.Context, runID uuid.UUID, kind domain.RunKind) (err error) {
	defer func() { observe("clean", err) }()

	selector := metav1.ListOptions{LabelSelector: RunSelector(runID)}
	propagation := metav1.DeletePropagationBackground
	opts := metav1.DeleteOptions{PropagationPolicy: &propagation}

	services, err := e.client.CoreV1().Services(e.namespace).List(ctx, selector)
	if err != nil {
		return fmt.Errorf("list services: %w", err)
	}
	for _, svc := range services.Items {
		if err := ignoreNotFound(e.client.CoreV1().Services(e.namespace).Delete(ctx, svc.Name, opts)); err != nil {
			return fmt.Errorf("delete service %s: %w", svc.Name, err)
		}
	}

	if kind == domain.KindJob {
		if err := ignoreNotFound(e.client.BatchV1().Jobs(e.namespace).DeleteCollection(ctx, opts, selector)); err != nil {
			return fmt.Errorf("delete jobs: %w", err)
		}
	}
	if kind == domain.KindService {
		if err := ignoreNotFound(e.client.AppsV1().Deployments(e.namespace).DeleteCollection(ctx, opts, selector)); err != nil {
			return fmt.Errorf("delete deployments: %w", err)
		}
	}
	if err := ignoreNotFound(e.client.CoreV1().Pods(e.namespace).DeleteCollection(ctx, opts, selector)); err != nil {
		return fmt.Errorf("delete pods: %w", err)
	}

	e.logger.Info("run cleaned on cluster", "run_id", runID, "kind", kind)
	return nil
}

// HealthCheck проверяет доступность Kubernetes API.
func (e *Executor) HealthCheck(ctx context.Context) error {
	_, err := e.client.Discovery().ServerVersion()
	return err
}

func ignoreExists(err error) error {
	if apierrors.IsAlreadyExists(err) {
		return nil
	}
	return err
}

func ignoreNotFound(err error) error {
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

func observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	telemetry.ClusterCalls.WithLabelValues(op, outcome).Inc()
}
