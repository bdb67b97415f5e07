package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UserID identifies a group member. Ids are issued by the auth provider and are opaque here.
type UserID string

// Share is one member's portion of a single expense.
type Share struct {
	ID     uuid.UUID
	UserID UserID
	Amount decimal.Decimal
	IsPaid bool
}

// Expense is a cost fronted by one member (the payer) and split into shares.
type Expense struct {
	ID        uuid.UUID
	GroupID   uuid.UUID
	Title     string
	Category  Category
	Amount    decimal.Decimal
	Currency  string
	PaidBy    UserID
	CreatedAt time.Time
	Shares    []Share
}

// ShareRequest is a share that has been computed but not stored yet.
type ShareRequest struct {
	UserID UserID
	Amount decimal.Decimal
}

// Transfer is a suggested payment from one member to another.
type Transfer struct {
	From   UserID
	To     UserID
	Amount decimal.Decimal
}
