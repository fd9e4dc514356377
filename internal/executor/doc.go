// Package executor — таблица реакций на события run'ов.
//
// Executor получает события из in-process outbox, а события других процессов
// из очереди events.executor (HandleDelivery, Consume), и по статической таблице
// (тип события → обработчик) ставит задачи Scheduling Manager'у:
//
//	run.created, run.resumed → prepare (eager — сразу, иначе через очередь)
//	run.approved             → start для COMPILED, prepare для некомпилированных
//	run.stopping             → stop(update_status)
//	run.new_artifacts        → set_artifacts
//	run.deleted              → отвязка cache-клонов, FAILED для ждущих сборки,
//	                           каскад удаления для членов pipeline
//	run.done                 → notify_done с задержкой
//
// Остальные типы игнорируются. События с признаком Dispatched уже обработаны
// локальным executor'ом записавшего процесса и из брокера не берутся.
package executor
