// Package app собирает компоненты Conveyor в один граф зависимостей.
//
// Wire связывает уже созданные хранилища, брокер и кластер: Manager,
// Auditor, outbox, Executor и Dispatcher. Connect открывает внешние
// подключения (Postgres, RabbitMQ, Redis, Kubernetes) по config.Config
// и вызывает Wire. Оба бинарника (conveyor-scheduler и conveyor-cli)
// используют один и тот же граф.
package app
