package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trypie/ledger"
)

// MemberBalance is the direct balance between the viewer and another member.
type MemberBalance struct {
	UserID ledger.UserID
	Name   string
	// Net is positive when the member owes the viewer.
	Net    decimal.Decimal
	Label  string
	Amount decimal.Decimal
}

// Balances is the ledger of a group as seen by one member.
type Balances struct {
	Viewer      ledger.UserID
	TotalOwed   decimal.Decimal
	TotalOwedTo decimal.Decimal
	Members     []MemberBalance
	Transfers   []ledger.Transfer
}

// ComputeBalances derives the viewer's balances from a snapshot. Members are listed in
// the given order, the viewer excluded.
func ComputeBalances(expenses []ledger.Expense, viewer ledger.UserID, members map[ledger.UserID]string, order []ledger.UserID) *Balances {
	b := &Balances{
		Viewer:      viewer,
		TotalOwed:   ledger.TotalOwedBy(expenses, viewer),
		TotalOwedTo: ledger.TotalOwedTo(expenses, viewer),
		Members:     make([]MemberBalance, 0, len(order)),
		Transfers:   ledger.SettlementPlan(expenses),
	}
	for _, user := range order {
		if user == viewer {
			continue
		}
		net := ledger.NetBalance(expenses, viewer, user)
		label, amount := ledger.BalanceLabel(net)
		b.Members = append(b.Members, MemberBalance{
			UserID: user,
			Name:   members[user],
			Net:    net,
			Label:  label,
			Amount: amount,
		})
	}
	return b
}

// Balances fetches a fresh snapshot and computes the viewer's balances on it.
func (s *ExpenseService) Balances(ctx context.Context, viewer ledger.UserID, groupID uuid.UUID) (*Balances, error) {
	members, _, err := s.requireMember(ctx, groupID, viewer)
	if err != nil {
		return nil, err
	}
	expenses, err := s.snapshot(ctx, groupID)
	if err != nil {
		return nil, err
	}

	names := make(map[ledger.UserID]string, len(members))
	order := make([]ledger.UserID, 0, len(members))
	for _, m := range members {
		names[m.UserID] = m.Name
		order = append(order, m.UserID)
	}
	return ComputeBalances(expenses, viewer, names, order), nil
}
