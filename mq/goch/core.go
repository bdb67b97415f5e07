package goch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"trypie/mq/mq"
)

type QueueError string

func (e QueueError) Error() string {
	return string(e)
}

const (
	ErrQueueFull          QueueError = "message queue is full"
	ErrQueueClosed        QueueError = "message queue is closed"
	ErrSubscriberNotFound QueueError = "subscriber not found"
)

const (
	defaultPublishTimeout = 100 * time.Millisecond
	defaultDeliverTimeout = 100 * time.Millisecond
)

type subscriber[M mq.TopicProvider] struct {
	topic uuid.UUID
	ch    chan M
}

// fanOutQueueCore copies every published message to the subscribers of its topic.
// A subscriber that does not accept a message within deliverTimeout is dropped and its
// channel closed.
type fanOutQueueCore[M mq.TopicProvider] struct {
	bufferSize     int
	publishTimeout time.Duration
	deliverTimeout time.Duration
	publishChan    chan M
	subscribers    map[uuid.UUID]*subscriber[M]
	mu             sync.RWMutex
	quit           chan struct{}
	stopOnce       sync.Once
	wg             sync.WaitGroup
}

func newFanOutQueueCore[M mq.TopicProvider](bufferSize int) *fanOutQueueCore[M] {
	return newFanOutQueueCoreWithTimeouts[M](bufferSize, defaultPublishTimeout, defaultDeliverTimeout)
}

func newFanOutQueueCoreWithTimeouts[M mq.TopicProvider](bufferSize int, publishTimeout, deliverTimeout time.Duration) *fanOutQueueCore[M] {
	core := &fanOutQueueCore[M]{
		bufferSize:     bufferSize,
		publishTimeout: publishTimeout,
		deliverTimeout: deliverTimeout,
		publishChan:    make(chan M, bufferSize),
		subscribers:    make(map[uuid.UUID]*subscriber[M]),
		quit:           make(chan struct{}),
	}
	core.wg.Add(1)
	go core.startFanOutRoutine()
	return core
}

func (core *fanOutQueueCore[M]) startFanOutRoutine() {
	defer core.wg.Done()
	for {
		select {
		case msg := <-core.publishChan:
			core.deliver(msg)
		case <-core.quit:
			return
		}
	}
}

func (core *fanOutQueueCore[M]) deliver(msg M) {
	topic := msg.GetTopic()
	var blocked []uuid.UUID

	core.mu.RLock()
	for id, sub := range core.subscribers {
		if sub.topic != topic {
			continue
		}
		select {
		case sub.ch <- msg:
		case <-time.After(core.deliverTimeout):
			blocked = append(blocked, id)
		}
	}
	core.mu.RUnlock()

	if len(blocked) == 0 {
		return
	}
	core.mu.Lock()
	for _, id := range blocked {
		if sub, ok := core.subscribers[id]; ok {
			delete(core.subscribers, id)
			close(sub.ch)
			slog.Warn("dropped slow subscriber", "subscriber", id, "topic", topic)
		}
	}
	core.mu.Unlock()
}

// Publish queues msg for fan-out. It fails with ErrQueueFull when the queue stays
// full for publishTimeout.
func (core *fanOutQueueCore[M]) Publish(msg M) error {
	select {
	case <-core.quit:
		return ErrQueueClosed
	default:
	}

	select {
	case core.publishChan <- msg:
		return nil
	case <-core.quit:
		return ErrQueueClosed
	case <-time.After(core.publishTimeout):
		return ErrQueueFull
	}
}

func (core *fanOutQueueCore[M]) Subscribe(topic uuid.UUID) (uuid.UUID, <-chan M, error) {
	core.mu.Lock()
	defer core.mu.Unlock()

	select {
	case <-core.quit:
		return uuid.Nil, nil, ErrQueueClosed
	default:
	}

	id := uuid.New()
	sub := &subscriber[M]{topic: topic, ch: make(chan M, core.bufferSize)}
	core.subscribers[id] = sub
	return id, sub.ch, nil
}

func (core *fanOutQueueCore[M]) DeSubscribe(id uuid.UUID) error {
	core.mu.Lock()
	defer core.mu.Unlock()

	sub, ok := core.subscribers[id]
	if !ok {
		return ErrSubscriberNotFound
	}
	delete(core.subscribers, id)
	close(sub.ch)
	return nil
}

// Stop ends the fan-out routine and closes every subscriber channel.
// Messages still queued are discarded.
func (core *fanOutQueueCore[M]) Stop() {
	core.stopOnce.Do(func() {
		close(core.quit)
	})
	core.wg.Wait()

	core.mu.Lock()
	for id, sub := range core.subscribers {
		delete(core.subscribers, id)
		close(sub.ch)
	}
	core.mu.Unlock()
}
