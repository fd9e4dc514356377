// Conveyor Scheduler — фоновая служба Scheduling Manager'а.
//
// Scheduler:
//   - Обрабатывает события run'ов из outbox (executor)
//   - Выполняет задачи из RabbitMQ (tasks.scheduler)
//   - На лидере периодически продвигает активные pipelines
//   - Отдаёт /healthz и /metrics
//
// Экземпляры масштабируются горизонтально; цикл продвижения pipelines
// работает только на держателе advisory lock.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Conveyor/internal/app"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/scheduler"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/worker"
)

// version задаётся через ldflags при сборке.
var version = "dev"

const leaderInterval = 5 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("conveyor-scheduler failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := telemetry.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("starting conveyor-scheduler", "version", version)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName, version, logger)
	if err != nil {
		return err
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	a, err := app.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	loop, err := scheduler.NewLoop(a.Manager, scheduler.LoopConfig{
		Spec:   cfg.ReconcileSchedule,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCanceled(a.Executor.Run(gctx, a.Outbox))
	})

	if a.MQ != nil && cfg.SchedulerEnabled {
		// События других процессов (API, внешние продюсеры) приходят через брокер.
		g.Go(func() error {
			return ignoreCanceled(a.Executor.Consume(gctx, a.MQ))
		})

		w := worker.New(worker.Config{
			Conn:     a.MQ,
			Router:   a.Dispatcher.Router(),
			Prefetch: cfg.WorkerPrefetch,
			Logger:   logger,
		})
		g.Go(func() error {
			if err := w.Start(gctx); err != nil {
				return err
			}
			<-gctx.Done()
			w.Stop()
			return nil
		})
	}

	if a.Pool != nil {
		g.Go(func() error {
			err := app.RunAsLeader(gctx, a.Pool, app.LeaderLockKey, leaderInterval, logger, func(lctx context.Context) {
				if err := loop.Start(lctx); err != nil {
					logger.Error("reconcile loop start failed", "error", err)
					return
				}
				<-lctx.Done()
				sctx, scancel := context.WithTimeout(context.WithoutCancel(lctx), 10*time.Second)
				defer scancel()
				loop.Stop(sctx)
			})
			return ignoreCanceled(err)
		})
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if a.MQ != nil && !a.MQ.IsConnected() {
			http.Error(w, "rabbitmq disconnected", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.MetricsAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		return srv.Shutdown(sctx)
	})

	err = g.Wait()
	logger.Info("conveyor-scheduler stopped")
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
