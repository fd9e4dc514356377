// Package events — типизированные события жизненного цикла run'ов.
//
// Схема каждого события задана статически (registry): какие атрибуты
// обязательны. New проверяет их при построении, без reflection.
//
// Auditor записывает событие в два независимых sink'а:
//   - Durable — RabbitMQ (conveyor.events) или Redis stream, для внешних потребителей
//   - Local — Outbox, буферизированный канал, из которого читает executor
//
// Ошибка sink'а логируется и никогда не возвращается вызывающему:
// запись события не должна ломать мутацию, которая его породила.
package events
