package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trypie/ledger"
)

type Role string

const (
	RoleOrganizer Role = "organizer"
	RoleMember    Role = "member"
)

type GroupInfo struct {
	ID          uuid.UUID
	Title       string
	Destination string
	CreatorID   ledger.UserID
	CreatedAt   time.Time
}

type Member struct {
	GroupID   uuid.UUID
	UserID    ledger.UserID
	Name      string
	AvatarURL string
	Role      Role
	JoinedAt  time.Time
}

type ExpenseInfo struct {
	ID        uuid.UUID
	GroupID   uuid.UUID
	Title     string
	Category  ledger.Category
	Amount    decimal.Decimal
	Currency  string
	PaidBy    ledger.UserID
	CreatedAt time.Time
}

type Share struct {
	ID        uuid.UUID
	ExpenseID uuid.UUID
	UserID    ledger.UserID
	Amount    decimal.Decimal
	IsPaid    bool
}

type Expense struct {
	ExpenseInfo
	Shares []Share
}

// ShareTransition records one change of a share's paid flag. Transitions are never updated.
type ShareTransition struct {
	ID        uuid.UUID
	ShareID   uuid.UUID
	Actor     ledger.UserID
	From      bool
	To        bool
	CreatedAt time.Time
}

// ExpenseUpdate holds the editable fields of an expense. Nil fields are left untouched.
type ExpenseUpdate struct {
	Title    *string
	Category *ledger.Category
	Currency *string
}

// Apply returns a copy of info with the update applied.
func (u ExpenseUpdate) Apply(info ExpenseInfo) ExpenseInfo {
	if u.Title != nil {
		info.Title = *u.Title
	}
	if u.Category != nil {
		info.Category = *u.Category
	}
	if u.Currency != nil {
		info.Currency = *u.Currency
	}
	return info
}

// ToLedger converts a stored expense and its shares into the ledger view.
func (e Expense) ToLedger() ledger.Expense {
	shares := make([]ledger.Share, 0, len(e.Shares))
	for _, s := range e.Shares {
		shares = append(shares, ledger.Share{ID: s.ID, UserID: s.UserID, Amount: s.Amount, IsPaid: s.IsPaid})
	}
	return ledger.Expense{
		ID:        e.ID,
		GroupID:   e.GroupID,
		Title:     e.Title,
		Category:  e.Category,
		Amount:    e.Amount,
		Currency:  e.Currency,
		PaidBy:    e.PaidBy,
		CreatedAt: e.CreatedAt,
		Shares:    shares,
	}
}
