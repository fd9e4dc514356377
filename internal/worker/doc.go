// Package worker выполняет фоновые задачи Scheduling Manager'а.
//
// # Обзор
//
// Worker потребляет очередь tasks.scheduler (RabbitMQ) и передаёт каждую
// задачу в tasks.Router. Сам по себе Worker не знает, что делают задачи:
// обработчики регистрирует scheduler.Manager.
//
//	w := worker.New(worker.Config{
//	    Conn:   mqConn,
//	    Router: router,
//	    Logger: logger,
//	})
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// # Ошибки
//
//   - Некорректный payload или неизвестная задача — mq.ErrPermanent, сообщение уходит в DLQ
//   - Прочие ошибки — одна повторная доставка, затем DLQ
//
// Отложенные задачи (scheduler.notify_done) приходят из tasks.delayed
// по истечении TTL через dead-letter exchange.
package worker
