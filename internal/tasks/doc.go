// Package tasks описывает фоновые задачи Scheduling Manager'а.
//
// Задача — имя (scheduler.prepare, scheduler.stop, ...) и Payload.
// Router сопоставляет имя с обработчиком, Dispatcher решает, где задачу
// выполнить: сразу в текущей горутине (eager-режим или выключенный
// планировщик) или через очередь RabbitMQ, откуда её заберёт worker.
package tasks
