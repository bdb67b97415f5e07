package gcppubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"

	"trypie/mq/mq"
)

const (
	groupIDAttribute = "groupId"
	deliverTimeout   = 2 * time.Second
)

var ErrSubscriberNotFound = errors.New("subscriber not found")

type subscriptionInfo struct {
	gcpSubscription *pubsub.Subscription
	cancel          context.CancelFunc
	stopped         chan struct{}
}

// pubSubMessageQueue publishes one message kind and action to a single topic. Each
// subscriber gets its own GCP subscription filtered on the group id attribute.
type pubSubMessageQueue[M mq.TopicProvider] struct {
	kind   string
	action mq.Action
	client *pubsub.Client
	topic  *pubsub.Topic
	ctx    context.Context

	mu            sync.Mutex
	subscriptions map[uuid.UUID]*subscriptionInfo
}

func newPubSubMessageQueue[M mq.TopicProvider](ctx context.Context, client *pubsub.Client, kind string, action mq.Action) (*pubSubMessageQueue[M], error) {
	topicID := topicName(kind, action.String())
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic %s: %w", topicID, err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			return nil, fmt.Errorf("create topic %s: %w", topicID, err)
		}
		slog.Info("created Pub/Sub topic", "topic", topicID)
	}

	return &pubSubMessageQueue[M]{
		kind:          kind,
		action:        action,
		client:        client,
		topic:         topic,
		ctx:           ctx,
		subscriptions: make(map[uuid.UUID]*subscriptionInfo),
	}, nil
}

func (q *pubSubMessageQueue[M]) GetAction() mq.Action {
	return q.action
}

// Publish waits for the server to acknowledge the message.
func (q *pubSubMessageQueue[M]) Publish(msg M) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", q.kind, err)
	}

	result := q.topic.Publish(q.ctx, &pubsub.Message{
		Data:       body,
		Attributes: map[string]string{groupIDAttribute: msg.GetTopic().String()},
	})
	if _, err := result.Get(q.ctx); err != nil {
		return fmt.Errorf("publish %s message to %s: %w", q.kind, q.topic.ID(), err)
	}
	return nil
}

func (q *pubSubMessageQueue[M]) Subscribe(groupID uuid.UUID) (uuid.UUID, <-chan M, error) {
	id := uuid.New()
	subName := fmt.Sprintf("sub-%s-%s-%s", q.kind, q.action, id)

	gcpSub, err := q.client.CreateSubscription(q.ctx, subName, pubsub.SubscriptionConfig{
		Topic:            q.topic,
		Filter:           fmt.Sprintf("attributes.%s = %q", groupIDAttribute, groupID.String()),
		ExpirationPolicy: 24 * time.Hour,
		AckDeadline:      10 * time.Second,
	})
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("create subscription %s: %w", subName, err)
	}

	out := make(chan M, 8)
	receiveCtx, cancel := context.WithCancel(q.ctx)
	info := &subscriptionInfo{gcpSubscription: gcpSub, cancel: cancel, stopped: make(chan struct{})}

	q.mu.Lock()
	q.subscriptions[id] = info
	q.mu.Unlock()

	go func() {
		defer close(info.stopped)
		defer close(out)
		defer func() {
			q.mu.Lock()
			delete(q.subscriptions, id)
			q.mu.Unlock()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := gcpSub.Delete(ctx); err != nil {
				slog.Warn("delete subscription", "subscription", gcpSub.ID(), "error", err)
			}
		}()

		err := gcpSub.Receive(receiveCtx, func(ctx context.Context, m *pubsub.Message) {
			m.Ack()

			var msg M
			if err := json.Unmarshal(m.Data, &msg); err != nil {
				slog.Warn("unmarshal message", "kind", q.kind, "subscriber", id, "error", err)
				return
			}
			select {
			case out <- msg:
			case <-time.After(deliverTimeout):
				slog.Warn("subscriber too slow, message skipped", "kind", q.kind, "subscriber", id)
			case <-receiveCtx.Done():
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("receive loop stopped", "subscription", gcpSub.ID(), "error", err)
		}
	}()

	return id, out, nil
}

// DeSubscribe cancels the receiver. The channel is closed once the GCP subscription is deleted.
func (q *pubSubMessageQueue[M]) DeSubscribe(id uuid.UUID) error {
	q.mu.Lock()
	info, ok := q.subscriptions[id]
	q.mu.Unlock()
	if !ok {
		return ErrSubscriberNotFound
	}
	info.cancel()
	return nil
}

func (q *pubSubMessageQueue[M]) close() {
	q.mu.Lock()
	infos := make([]*subscriptionInfo, 0, len(q.subscriptions))
	for _, info := range q.subscriptions {
		infos = append(infos, info)
	}
	q.mu.Unlock()

	for _, info := range infos {
		info.cancel()
		<-info.stopped
	}
	q.topic.Stop()
}

type GCPGroupMessageQueueWrapper struct {
	ExpenseMQArray [mq.ActionCnt]*pubSubMessageQueue[mq.ExpenseMessage]
	ShareMQArray   [mq.ActionCnt]*pubSubMessageQueue[mq.ShareMessage]
	client         *pubsub.Client
}

// NewGCPGroupMessageQueueWrapper creates the topics it needs when they are missing.
func NewGCPGroupMessageQueueWrapper(ctx context.Context, projectID string) (*GCPGroupMessageQueueWrapper, error) {
	client, err := NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	wrapper := &GCPGroupMessageQueueWrapper{client: client}

	for action := mq.ActionCreate; action < mq.ActionCnt; action++ {
		q, err := newPubSubMessageQueue[mq.ExpenseMessage](ctx, client, "expense", action)
		if err != nil {
			_ = wrapper.Close()
			return nil, err
		}
		wrapper.ExpenseMQArray[action] = q
	}

	q, err := newPubSubMessageQueue[mq.ShareMessage](ctx, client, "share", mq.ActionUpdate)
	if err != nil {
		_ = wrapper.Close()
		return nil, err
	}
	wrapper.ShareMQArray[mq.ActionUpdate] = q

	return wrapper, nil
}

func (wrapper *GCPGroupMessageQueueWrapper) GetExpenseMessageQueue(action mq.Action) mq.ExpenseMessageQueue {
	if !action.Valid() || wrapper.ExpenseMQArray[action] == nil {
		return nil
	}
	return wrapper.ExpenseMQArray[action]
}

func (wrapper *GCPGroupMessageQueueWrapper) GetShareMessageQueue(action mq.Action) mq.ShareMessageQueue {
	if !action.Valid() || wrapper.ShareMQArray[action] == nil {
		return nil
	}
	return wrapper.ShareMQArray[action]
}

func (wrapper *GCPGroupMessageQueueWrapper) Close() error {
	for _, q := range wrapper.ExpenseMQArray {
		if q != nil {
			q.close()
		}
	}
	for _, q := range wrapper.ShareMQArray {
		if q != nil {
			q.close()
		}
	}
	return wrapper.client.Close()
}
