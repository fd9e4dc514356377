package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeTasks  Exchange = "conveyor.tasks"
	ExchangeEvents Exchange = "conveyor.events"
	ExchangeDLQ    Exchange = "conveyor.dlq"
)

// Queues — имена очередей.
const (
	QueueTasks          Queue = "tasks.scheduler"
	QueueTasksDelayed   Queue = "tasks.delayed"
	QueueEventsAudit    Queue = "events.audit"
	QueueEventsExecutor Queue = "events.executor"
	QueueDLQTasks       Queue = "dlq.tasks"
)

// Routing keys.
const (
	RoutingKeyTasks   RoutingKey = "scheduler"
	RoutingKeyDelayed RoutingKey = "delayed"
	RoutingKeyEvents  RoutingKey = "run.#"
	RoutingKeyDLQ     RoutingKey = "tasks"
)

// MaxPriority — максимальный приоритет задач (x-max-priority).
const MaxPriority = 10

// SetupTopology объявляет exchanges, queues и bindings.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeTasks, "direct"},
		{ExchangeEvents, "topic"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// queueArgs возвращает аргументы очередей.
//
// tasks.scheduler — приоритетная очередь с DLQ.
// tasks.delayed — без потребителей: сообщения живут Expiration мс
// и по истечении уходят обратно в conveyor.tasks с ключом scheduler.
func queueArgs() map[Queue]amqp.Table {
	return map[Queue]amqp.Table{
		QueueTasks: {
			"x-max-priority":            int32(MaxPriority),
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQ),
		},
		QueueTasksDelayed: {
			"x-dead-letter-exchange":    string(ExchangeTasks),
			"x-dead-letter-routing-key": string(RoutingKeyTasks),
		},
	}
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	args := queueArgs()
	queues := []Queue{QueueTasks, QueueTasksDelayed, QueueEventsAudit, QueueEventsExecutor, QueueDLQTasks}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q), // name
			true,      // durable
			false,     // delete when unused
			false,     // exclusive
			false,     // no-wait
			args[q],   // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueTasks, RoutingKeyTasks, ExchangeTasks},
		{QueueTasksDelayed, RoutingKeyDelayed, ExchangeTasks},
		{QueueEventsAudit, RoutingKeyEvents, ExchangeEvents},
		{QueueEventsExecutor, RoutingKeyEvents, ExchangeEvents},
		{QueueDLQTasks, RoutingKeyDLQ, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Conveyor RabbitMQ Topology:

    conveyor.tasks (direct)
    ├── tasks.scheduler [routing: scheduler, x-max-priority: 10]
    │       Consumer: scheduler worker
    │       DLQ: dlq.tasks
    └── tasks.delayed [routing: delayed]
            No consumer, expired messages → conveyor.tasks/scheduler

    conveyor.events (topic)
    ├── events.audit [routing: run.#]
    │       Durable event log
    └── events.executor [routing: run.#]
            Consumer: scheduler executor (skips locally dispatched events)

    conveyor.dlq (direct)
    └── dlq.tasks [routing: tasks]
            Manual processing
  `
}
