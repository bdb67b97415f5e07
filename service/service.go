// Package service applies the group ledger rules on top of a store and an event bus.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	dbt "trypie/db/db"
	"trypie/ledger"
	"trypie/libs/diff"
	"trypie/mq/mq"
	"trypie/pkg/logging"
)

var (
	// ErrForbidden is returned when the actor may not perform the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict is returned when the operation would break stored data.
	ErrConflict = errors.New("conflict")
)

type ExpenseService struct {
	DB  dbt.GroupDBWrapper
	MQ  mq.GroupMessageQueueWrapper
	log *slog.Logger
}

func NewExpenseService(store dbt.GroupDBWrapper, queues mq.GroupMessageQueueWrapper) *ExpenseService {
	return &ExpenseService{
		DB:  store,
		MQ:  queues,
		log: logging.Component("service"),
	}
}

func invalid(field, reason string) error {
	return &ledger.ValidationError{Field: field, Reason: reason}
}

// members loads the members of an existing group through the request loader.
func (s *ExpenseService) members(ctx context.Context, groupID uuid.UUID) ([]dbt.Member, error) {
	if _, err := s.DB.GetGroupInfo(ctx, groupID); err != nil {
		return nil, err
	}
	members, err := dbt.DataLoaderFrom(ctx, s.DB).GetGroupMembers.Load(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("load members of group %s: %w", groupID, err)
	}
	return members, nil
}

func findMember(members []dbt.Member, user ledger.UserID) (dbt.Member, bool) {
	for _, m := range members {
		if m.UserID == user {
			return m, true
		}
	}
	return dbt.Member{}, false
}

// requireMember fails with ErrForbidden unless actor belongs to the group.
func (s *ExpenseService) requireMember(ctx context.Context, groupID uuid.UUID, actor ledger.UserID) ([]dbt.Member, dbt.Member, error) {
	members, err := s.members(ctx, groupID)
	if err != nil {
		return nil, dbt.Member{}, err
	}
	me, ok := findMember(members, actor)
	if !ok {
		return nil, dbt.Member{}, fmt.Errorf("%s is not a member of group %s: %w", actor, groupID, ErrForbidden)
	}
	return members, me, nil
}

func expenseMessage(info dbt.ExpenseInfo, changes []diff.Change) mq.ExpenseMessage {
	return mq.ExpenseMessage{
		ID:       info.ID,
		GroupID:  info.GroupID,
		Title:    info.Title,
		Category: info.Category.String(),
		Amount:   info.Amount,
		Currency: info.Currency,
		PaidBy:   info.PaidBy,
		Changes:  changes,
	}
}

// Publishing happens after the store write succeeded, so a failure is logged and not
// returned: clients refetch the snapshot anyway.
func (s *ExpenseService) publishExpense(action mq.Action, msg mq.ExpenseMessage) {
	if s.MQ == nil {
		return
	}
	q := s.MQ.GetExpenseMessageQueue(action)
	if q == nil {
		return
	}
	if err := q.Publish(msg); err != nil {
		s.log.Warn("publish expense event", "action", action, "expense", msg.ID, "error", err)
	}
}

func (s *ExpenseService) publishShare(msg mq.ShareMessage) {
	if s.MQ == nil {
		return
	}
	q := s.MQ.GetShareMessageQueue(mq.ActionUpdate)
	if q == nil {
		return
	}
	if err := q.Publish(msg); err != nil {
		s.log.Warn("publish share event", "share", msg.ID, "error", err)
	}
}
