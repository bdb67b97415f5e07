package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"trypie/ledger"
	"trypie/mq/mq"
)

// Event is one change in a group, as streamed to connected clients.
type Event struct {
	Kind    string             `json:"kind"`
	Action  string             `json:"action"`
	Expense *mq.ExpenseMessage `json:"expense,omitempty"`
	Share   *mq.ShareMessage   `json:"share,omitempty"`
}

const (
	EventKindExpense = "expense"
	EventKindShare   = "share"
)

// Events streams the changes of a group until ctx is done. The channel is closed once
// every subscription has been released.
func (s *ExpenseService) Events(ctx context.Context, actor ledger.UserID, groupID uuid.UUID) (<-chan Event, error) {
	if _, _, err := s.requireMember(ctx, groupID, actor); err != nil {
		return nil, err
	}
	if s.MQ == nil {
		return nil, fmt.Errorf("event stream is not configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Event)
	var dones []<-chan struct{}

	for action := mq.ActionCreate; action < mq.ActionCnt; action++ {
		if q := s.MQ.GetExpenseMessageQueue(action); q != nil {
			done, err := mq.SubscribeProcessor(ctx, groupID, q, expenseEvent(action), out)
			if err != nil {
				cancel()
				return nil, fmt.Errorf("subscribe expense %s: %w", action, err)
			}
			dones = append(dones, done)
		}
		if q := s.MQ.GetShareMessageQueue(action); q != nil {
			done, err := mq.SubscribeProcessor(ctx, groupID, q, shareEvent(action), out)
			if err != nil {
				cancel()
				return nil, fmt.Errorf("subscribe share %s: %w", action, err)
			}
			dones = append(dones, done)
		}
	}

	// one closed subscription ends the whole stream so the client reconnects
	go func() {
		var wg sync.WaitGroup
		for _, done := range dones {
			wg.Add(1)
			go func(done <-chan struct{}) {
				defer wg.Done()
				<-done
				cancel()
			}(done)
		}
		wg.Wait()
		close(out)
	}()
	return out, nil
}

func expenseEvent(action mq.Action) func(mq.ExpenseMessage) (Event, bool, error) {
	return func(msg mq.ExpenseMessage) (Event, bool, error) {
		if msg.ID == uuid.Nil {
			return Event{}, true, nil
		}
		return Event{Kind: EventKindExpense, Action: action.String(), Expense: &msg}, false, nil
	}
}

func shareEvent(action mq.Action) func(mq.ShareMessage) (Event, bool, error) {
	return func(msg mq.ShareMessage) (Event, bool, error) {
		if msg.ID == uuid.Nil {
			return Event{}, true, nil
		}
		return Event{Kind: EventKindShare, Action: action.String(), Share: &msg}, false, nil
	}
}
