package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Conveyor/internal/cluster"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/events"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
)

// Connect открывает подключения по конфигурации и собирает граф.
//
// Postgres обязателен. RabbitMQ нужен для очереди задач и amqp-sink'а;
// если брокер недоступен, задачи выполняются inline. Kubernetes
// подключается только при ClusterEnabled.
func Connect(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	logger.Info("database connected")

	closers := []func(){pool.Close}
	fail := func(err error) (*App, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		return nil, err
	}

	deps := Deps{
		Runs:      repo.NewRunRepo(pool),
		Edges:     repo.NewEdgeRepo(pool),
		Artifacts: repo.NewArtifactRepo(pool),
	}

	var conn *mq.Connection
	if cfg.SchedulerEnabled || cfg.EventSink == config.SinkAMQP {
		conn, err = mq.NewConnection(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("rabbitmq not available, tasks run inline", "error", err)
			conn = nil
		} else {
			closers = append(closers, func() { _ = conn.Close() })
			if err := mq.SetupTopology(ctx, conn); err != nil {
				return fail(fmt.Errorf("rabbitmq topology: %w", err))
			}
			logger.Info("rabbitmq connected")
			logger.Debug("rabbitmq topology declared", "layout", mq.TopologyInfo())
		}
	}

	if conn != nil {
		publisher := mq.NewPublisher(conn, logger)
		if cfg.SchedulerEnabled {
			deps.Publisher = publisher
		}
		if cfg.EventSink == config.SinkAMQP {
			deps.Durable = events.NewAMQPSink(publisher)
		}
	}

	var rdb *redis.Client
	if cfg.EventSink == config.SinkRedis {
		rdb, err = events.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("redis: %w", err))
		}
		closers = append(closers, func() { _ = rdb.Close() })
		deps.Durable = events.NewRedisSink(rdb, "", 0)
		logger.Info("redis event sink enabled")
	}

	var executor *cluster.Executor
	if cfg.ClusterEnabled {
		clientset, err := cluster.NewClientset(cluster.ClientConfig{
			InCluster:  cfg.InCluster,
			Kubeconfig: cfg.Kubeconfig,
		})
		if err != nil {
			return fail(fmt.Errorf("kubernetes: %w", err))
		}
		executor = cluster.NewExecutor(cluster.Config{
			Client:    clientset,
			Namespace: cfg.Namespace,
			SubmitRPS: cfg.SubmitRPS,
			Logger:    logger.With("component", "cluster"),
		})
		deps.Cluster = executor
		logger.Info("kubernetes executor enabled", "namespace", cfg.Namespace)
	}

	a, err := Wire(cfg, deps, logger)
	if err != nil {
		return fail(err)
	}

	a.Pool = pool
	a.MQ = conn
	a.Cluster = executor
	a.Redis = rdb
	for _, c := range closers {
		a.onClose(c)
	}
	return a, nil
}
