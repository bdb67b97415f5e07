package goch

import (
	"github.com/google/uuid"

	"trypie/mq/mq"
)

// DefaultBufferSize is the capacity of the publish queue and of each subscriber channel.
const DefaultBufferSize = 64

// ChannelMessageQueue implements mq.MessageQueue in process.
type ChannelMessageQueue[M mq.TopicProvider] struct {
	action mq.Action
	core   *fanOutQueueCore[M]
}

func NewChannelMessageQueue[M mq.TopicProvider](action mq.Action, bufferSize int) *ChannelMessageQueue[M] {
	return &ChannelMessageQueue[M]{
		action: action,
		core:   newFanOutQueueCore[M](bufferSize),
	}
}

func (q *ChannelMessageQueue[M]) GetAction() mq.Action {
	return q.action
}

func (q *ChannelMessageQueue[M]) Publish(msg M) error {
	return q.core.Publish(msg)
}

func (q *ChannelMessageQueue[M]) Subscribe(topic uuid.UUID) (uuid.UUID, <-chan M, error) {
	return q.core.Subscribe(topic)
}

func (q *ChannelMessageQueue[M]) DeSubscribe(id uuid.UUID) error {
	return q.core.DeSubscribe(id)
}

func (q *ChannelMessageQueue[M]) Stop() {
	q.core.Stop()
}

type GoChanGroupMessageQueueWrapper struct {
	ExpenseMQArray [mq.ActionCnt]*ChannelMessageQueue[mq.ExpenseMessage]
	ShareMQArray   [mq.ActionCnt]*ChannelMessageQueue[mq.ShareMessage]
}

func NewGoChanGroupMessageQueueWrapper(bufferSize int) *GoChanGroupMessageQueueWrapper {
	wrapper := GoChanGroupMessageQueueWrapper{}
	// expense need create, update and delete
	for action := mq.ActionCreate; action < mq.ActionCnt; action++ {
		wrapper.ExpenseMQArray[action] = NewChannelMessageQueue[mq.ExpenseMessage](action, bufferSize)
	}
	// share only changes its paid flag
	wrapper.ShareMQArray[mq.ActionUpdate] = NewChannelMessageQueue[mq.ShareMessage](mq.ActionUpdate, bufferSize)
	return &wrapper
}

func (wrapper *GoChanGroupMessageQueueWrapper) GetExpenseMessageQueue(action mq.Action) mq.ExpenseMessageQueue {
	if !action.Valid() || wrapper.ExpenseMQArray[action] == nil {
		return nil
	}
	return wrapper.ExpenseMQArray[action]
}

func (wrapper *GoChanGroupMessageQueueWrapper) GetShareMessageQueue(action mq.Action) mq.ShareMessageQueue {
	if !action.Valid() || wrapper.ShareMQArray[action] == nil {
		return nil
	}
	return wrapper.ShareMQArray[action]
}

func (wrapper *GoChanGroupMessageQueueWrapper) Close() error {
	for _, q := range wrapper.ExpenseMQArray {
		if q != nil {
			q.Stop()
		}
	}
	for _, q := range wrapper.ShareMQArray {
		if q != nil {
			q.Stop()
		}
	}
	return nil
}
