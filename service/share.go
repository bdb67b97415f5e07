package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	dbt "trypie/db/db"
	"trypie/ledger"
	"trypie/mq/mq"
)

// SetSharePaid marks a share paid or unpaid. Only the member who owes the share or the
// payer of its expense may do it. Setting the current value again changes nothing.
func (s *ExpenseService) SetSharePaid(ctx context.Context, actor ledger.UserID, shareID uuid.UUID, paid bool) (*dbt.Share, error) {
	share, err := s.DB.GetShare(ctx, shareID)
	if err != nil {
		return nil, err
	}
	expense, err := s.DB.GetExpense(ctx, share.ExpenseID)
	if err != nil {
		return nil, err
	}
	if actor != share.UserID && actor != expense.PaidBy {
		return nil, fmt.Errorf("%s may not settle share %s: %w", actor, shareID, ErrForbidden)
	}

	updated, err := s.DB.SetSharePaid(ctx, shareID, paid, actor)
	if err != nil {
		return nil, fmt.Errorf("set share %s paid=%t: %w", shareID, paid, err)
	}
	if share.IsPaid != updated.IsPaid {
		s.publishShare(mq.ShareMessage{
			ID:        updated.ID,
			ExpenseID: updated.ExpenseID,
			GroupID:   expense.GroupID,
			UserID:    updated.UserID,
			Amount:    updated.Amount,
			IsPaid:    updated.IsPaid,
			Actor:     actor,
		})
	}
	return updated, nil
}

// ShareHistory lists the paid flag transitions of a share, oldest first.
func (s *ExpenseService) ShareHistory(ctx context.Context, actor ledger.UserID, shareID uuid.UUID) ([]dbt.ShareTransition, error) {
	share, err := s.DB.GetShare(ctx, shareID)
	if err != nil {
		return nil, err
	}
	expense, err := s.DB.GetExpense(ctx, share.ExpenseID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.requireMember(ctx, expense.GroupID, actor); err != nil {
		return nil, err
	}
	return s.DB.ListShareTransitions(ctx, shareID)
}
