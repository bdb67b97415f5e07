package db

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"trypie/ledger"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// GroupDBWrapper is the storage contract shared by every store.
// CreateExpense writes the expense and all of its shares atomically, filling in missing
// share ids and timestamps on the argument. Lookups of missing rows return ErrNotFound.
type GroupDBWrapper interface {
	// Group
	CreateGroup(ctx context.Context, info *GroupInfo) error
	GetGroupInfo(ctx context.Context, id uuid.UUID) (*GroupInfo, error)
	DeleteGroup(ctx context.Context, id uuid.UUID) error
	// Member
	AddMember(ctx context.Context, member *Member) error
	RemoveMember(ctx context.Context, groupID uuid.UUID, userID ledger.UserID) error
	ListMembers(ctx context.Context, groupID uuid.UUID) ([]Member, error)
	// Expense
	CreateExpense(ctx context.Context, expense *Expense) error
	GetExpense(ctx context.Context, id uuid.UUID) (*Expense, error)
	ListExpenses(ctx context.Context, groupID uuid.UUID) ([]ExpenseInfo, error)
	UpdateExpense(ctx context.Context, id uuid.UUID, update ExpenseUpdate) (*ExpenseInfo, error)
	DeleteExpense(ctx context.Context, id uuid.UUID) error
	// Share
	GetShare(ctx context.Context, id uuid.UUID) (*Share, error)
	SetSharePaid(ctx context.Context, id uuid.UUID, paid bool, actor ledger.UserID) (*Share, error)
	ListShareTransitions(ctx context.Context, shareID uuid.UUID) ([]ShareTransition, error)
	// Data Loader
	DataLoaderGetExpenseShares(ctx context.Context, expenseIDs []uuid.UUID) (map[uuid.UUID][]Share, error)
	DataLoaderGetGroupMembers(ctx context.Context, groupIDs []uuid.UUID) (map[uuid.UUID][]Member, error)
}
