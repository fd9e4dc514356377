// Package scheduler — Scheduling Manager: продвижение run'ов по жизненному циклу.
//
// Каждая операция (Prepare, Start, Stop, SetArtifacts, Built, NotifyDone,
// ReconcilePipeline) перечитывает run по ID, идемпотентна и возвращает bool:
// продвинулся ли run. Ошибки компилятора и кластера не выходят за границу
// операции, а превращаются в статус FAILED с текстом ошибки в условии.
//
// Структура:
//   - manager.go   — Manager, зависимости, общая обвязка операций
//   - prepare.go   — Prepare и шаг кэша
//   - start.go     — Start и Stop
//   - artifacts.go — SetArtifacts
//   - pipeline.go  — ReconcilePipeline, NotifyDone, Built
//   - cron.go      — Loop: периодический reconcile активных pipeline'ов
//   - routes.go    — регистрация операций в tasks.Router
//
// Использование:
//
//	mgr := scheduler.New(scheduler.Config{
//	    Runs:      store.Runs(),
//	    Edges:     store.Edges(),
//	    Artifacts: store.Artifacts(),
//	    Compiler:  comp,
//	    Converter: converter,
//	    Cluster:   executor,
//	    Auditor:   auditor,
//	    Queue:     dispatcher,
//	    InCluster: true,
//	    Logger:    logger,
//	})
//	mgr.Register(dispatcher.Router())
package scheduler
