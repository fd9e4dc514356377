// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация задач (с приоритетом и задержкой) и событий
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - scheduler.*   — задачи Scheduling Manager (prepare, start, stop, ...)
//   - run.*         — события жизненного цикла run
//
// Exchanges:
//   - conveyor.tasks  — задачи (основная и отложенная очереди)
//   - conveyor.events — события, durable-журнал
//   - conveyor.dlq    — dead letter queue
package mq
