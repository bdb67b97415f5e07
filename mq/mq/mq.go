package mq

import "github.com/google/uuid"

// TopicProvider is implemented by every message. The topic is the group id.
type TopicProvider interface {
	GetTopic() uuid.UUID
}

// MessageQueue carries one message kind for one action. Subscribers only receive
// messages whose topic matches the one they subscribed with.
type MessageQueue[M TopicProvider] interface {
	GetAction() Action
	Publish(msg M) error
	Subscribe(topic uuid.UUID) (uuid.UUID, <-chan M, error)
	DeSubscribe(id uuid.UUID) error
}

type ExpenseMessageQueue = MessageQueue[ExpenseMessage]

type ShareMessageQueue = MessageQueue[ShareMessage]

// GroupMessageQueueWrapper returns nil for actions a message kind does not use.
// Shares only have ActionUpdate; they are created and deleted with their expense.
type GroupMessageQueueWrapper interface {
	GetExpenseMessageQueue(action Action) ExpenseMessageQueue
	GetShareMessageQueue(action Action) ShareMessageQueue
	Close() error
}
