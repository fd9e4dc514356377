package mq

import (
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestBuildPublishing_Delay(t *testing.T) {
	msg := NewMessage("scheduler.notify_done", map[string]string{"run_id": "x"})

	p, err := buildPublishing(msg, PublishOptions{Expiration: 1500 * time.Millisecond, Priority: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.Expiration != "1500" {
		t.Errorf("expected expiration 1500, got %q", p.Expiration)
	}
	if p.Priority != 3 {
		t.Errorf("expected priority 3, got %d", p.Priority)
	}
	if p.DeliveryMode != amqp.Persistent {
		t.Error("messages must be persistent")
	}
	if p.Type != "scheduler.notify_done" || p.MessageId != msg.ID {
		t.Errorf("unexpected envelope: type=%s id=%s", p.Type, p.MessageId)
	}
}

func TestBuildPublishing_PriorityClamped(t *testing.T) {
	p, err := buildPublishing(NewMessage("scheduler.start", nil), PublishOptions{Priority: 200})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Priority != MaxPriority {
		t.Errorf("expected priority clamped to %d, got %d", MaxPriority, p.Priority)
	}
	if p.Expiration != "" {
		t.Errorf("expected no expiration, got %q", p.Expiration)
	}
}

func TestParsePayload(t *testing.T) {
	type payload struct {
		RunID string `json:"run_id"`
		Eager bool   `json:"eager"`
	}

	// После JSON-круга payload приходит как map[string]any
	body, _ := json.Marshal(NewMessage("scheduler.prepare", payload{RunID: "abc", Eager: true}))
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got, err := ParsePayload[payload](&msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.RunID != "abc" || !got.Eager {
		t.Errorf("unexpected payload: %+v", got)
	}

	// Consumer оставляет payload сырым
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	raw := Message{ID: env.ID, Type: env.Type, Payload: env.Payload}
	got, err = ParsePayload[payload](&raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.RunID != "abc" || !got.Eager || env.Type != "scheduler.prepare" {
		t.Errorf("unexpected raw payload: %+v (%s)", got, env.Type)
	}
}

func TestQueueArgs(t *testing.T) {
	args := queueArgs()

	delayed := args[QueueTasksDelayed]
	if delayed["x-dead-letter-exchange"] != string(ExchangeTasks) {
		t.Error("delayed queue must dead-letter back into the tasks exchange")
	}
	if delayed["x-dead-letter-routing-key"] != string(RoutingKeyTasks) {
		t.Error("delayed queue must dead-letter with the scheduler routing key")
	}

	if args[QueueTasks]["x-max-priority"] != int32(MaxPriority) {
		t.Error("tasks queue must be a priority queue")
	}
}
