package mq

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trypie/ledger"
	"trypie/libs/diff"
)

type Action int

const (
	ActionCreate Action = iota
	ActionUpdate
	ActionDelete
	ActionCnt
)

var actionNames = [ActionCnt]string{"create", "update", "delete"}

func (a Action) Valid() bool {
	return a >= 0 && a < ActionCnt
}

func (a Action) String() string {
	if !a.Valid() {
		return "unknown"
	}
	return actionNames[a]
}

// ExpenseMessage announces a created, edited or deleted expense to the group.
type ExpenseMessage struct {
	ID       uuid.UUID       `json:"id"`
	GroupID  uuid.UUID       `json:"group_id"`
	Title    string          `json:"title"`
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	PaidBy   ledger.UserID   `json:"paid_by"`
	Changes  []diff.Change   `json:"changes,omitempty"`
}

func (m ExpenseMessage) GetTopic() uuid.UUID {
	return m.GroupID
}

// ShareMessage announces a change of a share's paid flag.
type ShareMessage struct {
	ID        uuid.UUID       `json:"id"`
	ExpenseID uuid.UUID       `json:"expense_id"`
	GroupID   uuid.UUID       `json:"group_id"`
	UserID    ledger.UserID   `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	IsPaid    bool            `json:"is_paid"`
	Actor     ledger.UserID   `json:"actor"`
}

func (m ShareMessage) GetTopic() uuid.UUID {
	return m.GroupID
}
