// Package cli реализует операторскую утилиту Conveyor.
//
// Команды выполняют операции Scheduling Manager'а и live state напрямую
// против хранилища, в inline-режиме: задачи не ставятся в очередь, а
// события, порождённые операцией, обрабатываются executor'ом до выхода
// из команды (App.Drain).
//
// Группы команд:
//   - run: show, prepare, start, stop, archive, restore, delete, confirm-delete
//   - pipeline: graph, done, reconcile
//   - cache: fingerprint (без хранилища)
//   - admission: startable (без хранилища)
//
// Каждая группа создаётся фабричной функцией (NewRunCmd и т.д.), принимающей
// appFn и outputFn: замыкания для ленивого подключения и форматирования
// после разбора PersistentFlags. Данные выводятся в stdout таблицей или JSON
// (--json), сообщения в stderr:
//
//	conveyor pipeline graph 5f0c... --json | jq .
package cli
