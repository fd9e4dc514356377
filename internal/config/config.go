// Package config загружает конфигурацию Conveyor из переменных окружения.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Виды durable sink'а событий.
const (
	SinkAMQP  = "amqp"
	SinkRedis = "redis"
	SinkNone  = "none"
)

// ErrInvalidConfig — недопустимое значение конфигурации.
var ErrInvalidConfig = errors.New("invalid config")

// Config — конфигурация процессов Conveyor.
type Config struct {
	// Хранилища и брокер.
	DatabaseURL string
	RabbitMQURL string
	RedisURL    string

	// EventSink — durable sink событий: amqp, redis или none.
	EventSink string

	// SchedulerEnabled — false: задачи выполняются inline, без очереди.
	SchedulerEnabled bool

	// ClusterEnabled — job/service отправляются в Kubernetes.
	// InCluster — учётные данные service account вместо kubeconfig.
	ClusterEnabled bool
	InCluster      bool
	Namespace      string
	Kubeconfig     string
	SubmitRPS      float64

	// Reconcile loop и outbox.
	ReconcileSchedule string
	OutboxSize        int
	NotifyDoneDelay   time.Duration
	WorkerPrefetch    int

	// Наблюдаемость.
	OTLPEndpoint string
	ServiceName  string
	MetricsPort  int
	LogLevel     string
	LogFormat    string
}

// Load читает .env (если есть) и переменные окружения.
// Уже заданные переменные окружения .env не перезаписывает.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	cfg := Config{
		DatabaseURL:       envStr("DB_URL", ""),
		RabbitMQURL:       envStr("RABBITMQ_URL", ""),
		RedisURL:          envStr("REDIS_URL", ""),
		EventSink:         strings.ToLower(envStr("EVENT_SINK", SinkAMQP)),
		SchedulerEnabled:  envBool("SCHEDULER_ENABLED", true),
		ClusterEnabled:    envBool("K8S_ENABLED", false),
		InCluster:         envBool("K8S_IN_CLUSTER", false),
		Namespace:         envStr("K8S_NAMESPACE", "conveyor"),
		Kubeconfig:        envStr("KUBECONFIG", ""),
		SubmitRPS:         envFloat("K8S_SUBMIT_RPS", 10),
		ReconcileSchedule: envStr("RECONCILE_SCHEDULE", "@every 10s"),
		OutboxSize:        envInt("OUTBOX_SIZE", 1024),
		NotifyDoneDelay:   envDuration("NOTIFY_DONE_DELAY", time.Second),
		WorkerPrefetch:    envInt("WORKER_PREFETCH", 5),
		OTLPEndpoint:      envStr("OTLP_ENDPOINT", ""),
		ServiceName:       envStr("OTEL_SERVICE_NAME", "conveyor"),
		MetricsPort:       envInt("METRICS_PORT", 8081),
		LogLevel:          envStr("LOG_LEVEL", "INFO"),
		LogFormat:         envStr("LOG_FORMAT", "json"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет значения, которые нельзя исправить значением по умолчанию.
func (c Config) Validate() error {
	var errs []error
	switch c.EventSink {
	case SinkAMQP, SinkRedis, SinkNone:
	default:
		errs = append(errs, fmt.Errorf("%w: EVENT_SINK must be amqp, redis or none, got %q", ErrInvalidConfig, c.EventSink))
	}
	if c.EventSink == SinkRedis && c.RedisURL == "" {
		errs = append(errs, fmt.Errorf("%w: REDIS_URL is required for the redis event sink", ErrInvalidConfig))
	}
	if c.SubmitRPS <= 0 {
		errs = append(errs, fmt.Errorf("%w: K8S_SUBMIT_RPS must be positive", ErrInvalidConfig))
	}
	if c.OutboxSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: OUTBOX_SIZE must be positive", ErrInvalidConfig))
	}
	if c.MetricsPort <= 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("%w: METRICS_PORT out of range", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

// MetricsAddr возвращает адрес HTTP-сервера /healthz и /metrics.
func (c Config) MetricsAddr() string {
	return ":" + strconv.Itoa(c.MetricsPort)
}

func envStr(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
