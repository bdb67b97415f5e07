package mem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	dbt "trypie/db/db"
	"trypie/ledger"
)

// inMemoryGroupDBWrapper is an in-memory implementation of dbt.GroupDBWrapper.
// Every read hands out copies so callers never alias stored state.
type inMemoryGroupDBWrapper struct {
	groups      map[uuid.UUID]*dbt.GroupInfo
	members     map[uuid.UUID][]dbt.Member
	expenses    map[uuid.UUID]*dbt.ExpenseInfo
	shares      map[uuid.UUID]*dbt.Share
	shareIndex  map[uuid.UUID][]uuid.UUID // expense id -> share ids, insertion order
	transitions map[uuid.UUID][]dbt.ShareTransition

	mu sync.RWMutex
}

// NewInMemoryGroupDBWrapper creates an empty store.
func NewInMemoryGroupDBWrapper() dbt.GroupDBWrapper {
	return &inMemoryGroupDBWrapper{
		groups:      make(map[uuid.UUID]*dbt.GroupInfo),
		members:     make(map[uuid.UUID][]dbt.Member),
		expenses:    make(map[uuid.UUID]*dbt.ExpenseInfo),
		shares:      make(map[uuid.UUID]*dbt.Share),
		shareIndex:  make(map[uuid.UUID][]uuid.UUID),
		transitions: make(map[uuid.UUID][]dbt.ShareTransition),
	}
}

func now() time.Time {
	return time.Now().UTC()
}

func (db *inMemoryGroupDBWrapper) CreateGroup(ctx context.Context, info *dbt.GroupInfo) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.groups[info.ID]; exists {
		return fmt.Errorf("group %s: %w", info.ID, dbt.ErrAlreadyExists)
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = now()
	}
	infoCopy := *info
	db.groups[info.ID] = &infoCopy
	db.members[info.ID] = []dbt.Member{}
	return nil
}

func (db *inMemoryGroupDBWrapper) GetGroupInfo(ctx context.Context, id uuid.UUID) (*dbt.GroupInfo, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	info, exists := db.groups[id]
	if !exists {
		return nil, fmt.Errorf("group %s: %w", id, dbt.ErrNotFound)
	}
	infoCopy := *info
	return &infoCopy, nil
}

// DeleteGroup removes the group with its members, expenses, shares and transitions.
func (db *inMemoryGroupDBWrapper) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.groups[id]; !exists {
		return fmt.Errorf("group %s: %w", id, dbt.ErrNotFound)
	}
	for expenseID, expense := range db.expenses {
		if expense.GroupID == id {
			db.deleteExpenseLocked(expenseID)
		}
	}
	delete(db.members, id)
	delete(db.groups, id)
	return nil
}

func (db *inMemoryGroupDBWrapper) AddMember(ctx context.Context, member *dbt.Member) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.groups[member.GroupID]; !exists {
		return fmt.Errorf("group %s: %w", member.GroupID, dbt.ErrNotFound)
	}
	for _, m := range db.members[member.GroupID] {
		if m.UserID == member.UserID {
			return fmt.Errorf("member %s of group %s: %w", member.UserID, member.GroupID, dbt.ErrAlreadyExists)
		}
	}
	if member.JoinedAt.IsZero() {
		member.JoinedAt = now()
	}
	db.members[member.GroupID] = append(db.members[member.GroupID], *member)
	return nil
}

func (db *inMemoryGroupDBWrapper) RemoveMember(ctx context.Context, groupID uuid.UUID, userID ledger.UserID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	members := db.members[groupID]
	for i, m := range members {
		if m.UserID == userID {
			db.members[groupID] = append(members[:i:i], members[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("member %s of group %s: %w", userID, groupID, dbt.ErrNotFound)
}

func (db *inMemoryGroupDBWrapper) ListMembers(ctx context.Context, groupID uuid.UUID) ([]dbt.Member, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if _, exists := db.groups[groupID]; !exists {
		return nil, fmt.Errorf("group %s: %w", groupID, dbt.ErrNotFound)
	}
	membersCopy := make([]dbt.Member, len(db.members[groupID]))
	copy(membersCopy, db.members[groupID])
	return membersCopy, nil
}

// CreateExpense stores the expense and its shares in one step. Nothing is written
// when any part is rejected.
func (db *inMemoryGroupDBWrapper) CreateExpense(ctx context.Context, expense *dbt.Expense) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.groups[expense.GroupID]; !exists {
		return fmt.Errorf("group %s: %w", expense.GroupID, dbt.ErrNotFound)
	}
	if _, exists := db.expenses[expense.ID]; exists {
		return fmt.Errorf("expense %s: %w", expense.ID, dbt.ErrAlreadyExists)
	}
	seen := make(map[uuid.UUID]struct{}, len(expense.Shares))
	for i := range expense.Shares {
		if expense.Shares[i].ID == uuid.Nil {
			expense.Shares[i].ID = uuid.New()
		}
		id := expense.Shares[i].ID
		if _, exists := db.shares[id]; exists {
			return fmt.Errorf("share %s: %w", id, dbt.ErrAlreadyExists)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("share %s: %w", id, dbt.ErrAlreadyExists)
		}
		seen[id] = struct{}{}
	}

	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = now()
	}
	info := expense.ExpenseInfo
	db.expenses[expense.ID] = &info
	ids := make([]uuid.UUID, 0, len(expense.Shares))
	for i := range expense.Shares {
		expense.Shares[i].ExpenseID = expense.ID
		shareCopy := expense.Shares[i]
		db.shares[shareCopy.ID] = &shareCopy
		ids = append(ids, shareCopy.ID)
	}
	db.shareIndex[expense.ID] = ids
	return nil
}

func (db *inMemoryGroupDBWrapper) GetExpense(ctx context.Context, id uuid.UUID) (*dbt.Expense, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	info, exists := db.expenses[id]
	if !exists {
		return nil, fmt.Errorf("expense %s: %w", id, dbt.ErrNotFound)
	}
	return &dbt.Expense{ExpenseInfo: *info, Shares: db.sharesOfLocked(id)}, nil
}

// ListExpenses returns the expense rows of a group, newest first.
func (db *inMemoryGroupDBWrapper) ListExpenses(ctx context.Context, groupID uuid.UUID) ([]dbt.ExpenseInfo, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if _, exists := db.groups[groupID]; !exists {
		return nil, fmt.Errorf("group %s: %w", groupID, dbt.ErrNotFound)
	}
	result := []dbt.ExpenseInfo{}
	for _, info := range db.expenses {
		if info.GroupID == groupID {
			result = append(result, *info)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() > result[j].ID.String()
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (db *inMemoryGroupDBWrapper) UpdateExpense(ctx context.Context, id uuid.UUID, update dbt.ExpenseUpdate) (*dbt.ExpenseInfo, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	info, exists := db.expenses[id]
	if !exists {
		return nil, fmt.Errorf("expense %s: %w", id, dbt.ErrNotFound)
	}
	updated := update.Apply(*info)
	db.expenses[id] = &updated
	result := updated
	return &result, nil
}

func (db *inMemoryGroupDBWrapper) DeleteExpense(ctx context.Context, id uuid.UUID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.expenses[id]; !exists {
		return fmt.Errorf("expense %s: %w", id, dbt.ErrNotFound)
	}
	db.deleteExpenseLocked(id)
	return nil
}

func (db *inMemoryGroupDBWrapper) deleteExpenseLocked(id uuid.UUID) {
	for _, shareID := range db.shareIndex[id] {
		delete(db.shares, shareID)
		delete(db.transitions, shareID)
	}
	delete(db.shareIndex, id)
	delete(db.expenses, id)
}

func (db *inMemoryGroupDBWrapper) sharesOfLocked(expenseID uuid.UUID) []dbt.Share {
	ids := db.shareIndex[expenseID]
	shares := make([]dbt.Share, 0, len(ids))
	for _, shareID := range ids {
		shares = append(shares, *db.shares[shareID])
	}
	return shares
}

func (db *inMemoryGroupDBWrapper) GetShare(ctx context.Context, id uuid.UUID) (*dbt.Share, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	share, exists := db.shares[id]
	if !exists {
		return nil, fmt.Errorf("share %s: %w", id, dbt.ErrNotFound)
	}
	shareCopy := *share
	return &shareCopy, nil
}

// SetSharePaid sets the paid flag. A transition is appended only when the flag changes.
func (db *inMemoryGroupDBWrapper) SetSharePaid(ctx context.Context, id uuid.UUID, paid bool, actor ledger.UserID) (*dbt.Share, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	share, exists := db.shares[id]
	if !exists {
		return nil, fmt.Errorf("share %s: %w", id, dbt.ErrNotFound)
	}
	if share.IsPaid != paid {
		db.transitions[id] = append(db.transitions[id], dbt.ShareTransition{
			ID:        uuid.New(),
			ShareID:   id,
			Actor:     actor,
			From:      share.IsPaid,
			To:        paid,
			CreatedAt: now(),
		})
		share.IsPaid = paid
	}
	shareCopy := *share
	return &shareCopy, nil
}

func (db *inMemoryGroupDBWrapper) ListShareTransitions(ctx context.Context, shareID uuid.UUID) ([]dbt.ShareTransition, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if _, exists := db.shares[shareID]; !exists {
		return nil, fmt.Errorf("share %s: %w", shareID, dbt.ErrNotFound)
	}
	transitions := make([]dbt.ShareTransition, len(db.transitions[shareID]))
	copy(transitions, db.transitions[shareID])
	return transitions, nil
}

func (db *inMemoryGroupDBWrapper) DataLoaderGetExpenseShares(ctx context.Context, expenseIDs []uuid.UUID) (map[uuid.UUID][]dbt.Share, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := make(map[uuid.UUID][]dbt.Share, len(expenseIDs))
	for _, id := range expenseIDs {
		result[id] = db.sharesOfLocked(id)
	}
	return result, nil
}

func (db *inMemoryGroupDBWrapper) DataLoaderGetGroupMembers(ctx context.Context, groupIDs []uuid.UUID) (map[uuid.UUID][]dbt.Member, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := make(map[uuid.UUID][]dbt.Member, len(groupIDs))
	for _, id := range groupIDs {
		members := make([]dbt.Member, len(db.members[id]))
		copy(members, db.members[id])
		result[id] = members
	}
	return result, nil
}
