package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishedTask struct {
	name     string
	payload  any
	delay    time.Duration
	priority uint8
}

type fakePublisher struct {
	err       error
	published []publishedTask
}

func (p *fakePublisher) PublishTask(_ context.Context, name string, payload any, delay time.Duration, priority uint8) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, publishedTask{name, payload, delay, priority})
	return nil
}

func countingRouter(calls *[]Payload) *Router {
	r := NewRouter()
	r.Register(Prepare, func(_ context.Context, p Payload) error {
		*calls = append(*calls, p)
		return nil
	})
	return r
}

func TestRouter_Handle(t *testing.T) {
	var calls []Payload
	r := countingRouter(&calls)
	id := uuid.New()

	require.NoError(t, r.Handle(context.Background(), Prepare, Payload{RunID: id, Eager: true}))
	require.Len(t, calls, 1)
	assert.Equal(t, id, calls[0].RunID)
	assert.True(t, calls[0].Eager)
}

func TestRouter_UnknownTask(t *testing.T) {
	r := NewRouter()
	err := r.Handle(context.Background(), Name("scheduler.teleport"), Payload{RunID: uuid.New()})
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestRouter_InvalidPayload(t *testing.T) {
	var calls []Payload
	r := countingRouter(&calls)

	err := r.Handle(context.Background(), Prepare, Payload{})

	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.Empty(t, calls)
}

func TestDispatcher_InlineWhenSchedulerDisabled(t *testing.T) {
	var calls []Payload
	pub := &fakePublisher{}
	d := NewDispatcher(DispatcherConfig{Router: countingRouter(&calls), Publisher: pub, SchedulerEnabled: false})

	require.NoError(t, d.Enqueue(context.Background(), Prepare, Payload{RunID: uuid.New()}, Options{}))

	assert.Len(t, calls, 1)
	assert.Empty(t, pub.published)
}

func TestDispatcher_InlineWhenEager(t *testing.T) {
	var calls []Payload
	pub := &fakePublisher{}
	d := NewDispatcher(DispatcherConfig{Router: countingRouter(&calls), Publisher: pub, SchedulerEnabled: true})

	require.NoError(t, d.Enqueue(context.Background(), Prepare, Payload{RunID: uuid.New()}, Options{Eager: true}))

	assert.Len(t, calls, 1)
	assert.Empty(t, pub.published)
}

func TestDispatcher_Queued(t *testing.T) {
	var calls []Payload
	pub := &fakePublisher{}
	d := NewDispatcher(DispatcherConfig{Router: countingRouter(&calls), Publisher: pub, SchedulerEnabled: true})
	id := uuid.New()

	err := d.Enqueue(context.Background(), NotifyDone, Payload{RunID: id}, Options{Delay: time.Second, Priority: 3})
	require.NoError(t, err)

	assert.Empty(t, calls)
	require.Len(t, pub.published, 1)
	assert.Equal(t, "scheduler.notify_done", pub.published[0].name)
	assert.Equal(t, time.Second, pub.published[0].delay)
	assert.Equal(t, uint8(3), pub.published[0].priority)
	assert.Equal(t, Payload{RunID: id}, pub.published[0].payload)
}

func TestDispatcher_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel closed")}
	d := NewDispatcher(DispatcherConfig{Publisher: pub, SchedulerEnabled: true})

	err := d.Enqueue(context.Background(), Start, Payload{RunID: uuid.New()}, Options{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler.start")
}

func TestDispatcher_NoPublisherRunsInline(t *testing.T) {
	var calls []Payload
	d := NewDispatcher(DispatcherConfig{Router: countingRouter(&calls), SchedulerEnabled: true})

	require.NoError(t, d.Enqueue(context.Background(), Prepare, Payload{RunID: uuid.New()}, Options{}))
	assert.Len(t, calls, 1)
}
