// Conveyor CLI — операторская утилита для управления runs и pipelines.
//
// Команды выполняются in-process против хранилища (DB_URL) в inline-режиме:
// задачи не ставятся в очередь, события обрабатываются до выхода.
//
// Использование:
//
//	conveyor [--env-file FILE] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	run        Управление runs
//	pipeline   Граф и продвижение pipelines
//	cache      Fingerprint спецификации
//	admission  Расчёт допуска pipeline
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/app"
	"github.com/shaiso/Conveyor/internal/cli"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var envFile string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "conveyor",
		Short:         "Conveyor CLI — run orchestration tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	var connected *app.App
	appFn := func(ctx context.Context) (*app.App, error) {
		if connected != nil {
			return connected, nil
		}
		cfg, err := config.Load(envFile)
		if err != nil {
			return nil, err
		}
		// Операции CLI выполняются в процессе, без очереди задач.
		cfg.SchedulerEnabled = false

		logger := telemetry.NewLogger(os.Stderr, cfg.LogLevel, "text")
		a, err := app.Connect(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		connected = a
		return a, nil
	}
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRunCmd(appFn, outputFn),
		cli.NewPipelineCmd(appFn, outputFn),
		cli.NewCacheCmd(outputFn),
		cli.NewAdmissionCmd(outputFn),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	if connected != nil {
		connected.Close()
	}
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
