package rabbit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"trypie/mq/mq"
)

const (
	publishTimeout = 5 * time.Second
	deliverTimeout = time.Second
)

var ErrSubscriberNotFound = errors.New("subscriber not found")

const (
	kindExpense = "expense"
	kindShare   = "share"
)

func routingKey(kind string, action mq.Action, topic uuid.UUID) string {
	return fmt.Sprintf("%s.%s.%s", kind, action, topic)
}

type consumer[M mq.TopicProvider] struct {
	tag  string
	out  chan M
	done chan struct{}
}

// rabbitMessageQueue gives every subscriber its own exclusive, auto-deleted queue bound
// to the routing key of its group, so subscribers never compete for messages.
type rabbitMessageQueue[M mq.TopicProvider] struct {
	kind      string
	action    mq.Action
	channel   *amqp.Channel
	mu        sync.Mutex
	consumers map[uuid.UUID]*consumer[M]
}

func newRabbitMessageQueue[M mq.TopicProvider](kind string, action mq.Action, conn *amqp.Connection) (*rabbitMessageQueue[M], error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := DeclareExchange(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &rabbitMessageQueue[M]{
		kind:      kind,
		action:    action,
		channel:   ch,
		consumers: make(map[uuid.UUID]*consumer[M]),
	}, nil
}

func (q *rabbitMessageQueue[M]) GetAction() mq.Action {
	return q.action
}

func (q *rabbitMessageQueue[M]) Publish(msg M) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", q.kind, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err = q.channel.PublishWithContext(ctx,
		exchangeName, // exchange
		routingKey(q.kind, q.action, msg.GetTopic()),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        body,
		})
	if err != nil {
		return fmt.Errorf("publish %s message: %w", q.kind, err)
	}
	return nil
}

func (q *rabbitMessageQueue[M]) Subscribe(topic uuid.UUID) (uuid.UUID, <-chan M, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	queue, err := q.channel.QueueDeclare(
		"",    // name, server generated
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := q.channel.QueueBind(queue.Name, routingKey(q.kind, q.action, topic), exchangeName, false, nil); err != nil {
		return uuid.Nil, nil, fmt.Errorf("bind queue %s: %w", queue.Name, err)
	}

	id := uuid.New()
	c := &consumer[M]{
		tag:  id.String(),
		out:  make(chan M),
		done: make(chan struct{}),
	}
	deliveries, err := q.channel.Consume(
		queue.Name, // queue
		c.tag,      // consumer
		true,       // auto-ack
		true,       // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("consume queue %s: %w", queue.Name, err)
	}
	q.consumers[id] = c

	go q.forward(id, c, deliveries)
	return id, c.out, nil
}

// forward keeps draining deliveries after DeSubscribe until the broker closes them.
func (q *rabbitMessageQueue[M]) forward(id uuid.UUID, c *consumer[M], deliveries <-chan amqp.Delivery) {
	defer close(c.out)
	for d := range deliveries {
		select {
		case <-c.done:
			continue
		default:
		}

		var msg M
		if err := json.Unmarshal(d.Body, &msg); err != nil {
			slog.Warn("unmarshal message", "kind", q.kind, "subscriber", id, "error", err)
			continue
		}
		select {
		case c.out <- msg:
		case <-c.done:
		case <-time.After(deliverTimeout):
			slog.Warn("subscriber too slow, message skipped", "kind", q.kind, "subscriber", id)
		}
	}
}

func (q *rabbitMessageQueue[M]) DeSubscribe(id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	c, ok := q.consumers[id]
	if !ok {
		return ErrSubscriberNotFound
	}
	delete(q.consumers, id)
	close(c.done)
	if err := q.channel.Cancel(c.tag, false); err != nil {
		return fmt.Errorf("cancel consumer %s: %w", c.tag, err)
	}
	return nil
}

func (q *rabbitMessageQueue[M]) close() error {
	q.mu.Lock()
	for id, c := range q.consumers {
		delete(q.consumers, id)
		close(c.done)
	}
	q.mu.Unlock()
	return q.channel.Close()
}

type RabbitGroupMessageQueueWrapper struct {
	ExpenseMQArray [mq.ActionCnt]*rabbitMessageQueue[mq.ExpenseMessage]
	ShareMQArray   [mq.ActionCnt]*rabbitMessageQueue[mq.ShareMessage]
	conn           *amqp.Connection
}

// NewRabbitGroupMessageQueueWrapper takes ownership of conn; Close closes it.
func NewRabbitGroupMessageQueueWrapper(conn *amqp.Connection) (*RabbitGroupMessageQueueWrapper, error) {
	wrapper := &RabbitGroupMessageQueueWrapper{conn: conn}

	for action := mq.ActionCreate; action < mq.ActionCnt; action++ {
		q, err := newRabbitMessageQueue[mq.ExpenseMessage](kindExpense, action, conn)
		if err != nil {
			_ = wrapper.Close()
			return nil, fmt.Errorf("create expense %s mq: %w", action, err)
		}
		wrapper.ExpenseMQArray[action] = q
	}

	q, err := newRabbitMessageQueue[mq.ShareMessage](kindShare, mq.ActionUpdate, conn)
	if err != nil {
		_ = wrapper.Close()
		return nil, fmt.Errorf("create share %s mq: %w", mq.ActionUpdate, err)
	}
	wrapper.ShareMQArray[mq.ActionUpdate] = q

	return wrapper, nil
}

func (wrapper *RabbitGroupMessageQueueWrapper) GetExpenseMessageQueue(action mq.Action) mq.ExpenseMessageQueue {
	if !action.Valid() || wrapper.ExpenseMQArray[action] == nil {
		return nil
	}
	return wrapper.ExpenseMQArray[action]
}

func (wrapper *RabbitGroupMessageQueueWrapper) GetShareMessageQueue(action mq.Action) mq.ShareMessageQueue {
	if !action.Valid() || wrapper.ShareMQArray[action] == nil {
		return nil
	}
	return wrapper.ShareMQArray[action]
}

func (wrapper *RabbitGroupMessageQueueWrapper) Close() error {
	var errs []error
	for _, q := range wrapper.ExpenseMQArray {
		if q != nil {
			errs = append(errs, q.close())
		}
	}
	for _, q := range wrapper.ShareMQArray {
		if q != nil {
			errs = append(errs, q.close())
		}
	}
	if wrapper.conn != nil && !wrapper.conn.IsClosed() {
		errs = append(errs, wrapper.conn.Close())
	}
	return errors.Join(errs...)
}
