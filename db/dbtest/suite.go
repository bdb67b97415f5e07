// Package dbtest holds the behaviour every db.GroupDBWrapper must share.
package dbtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbt "trypie/db/db"
	"trypie/ledger"
)

// RunGroupDBSuite runs the shared store tests. newDB must return an empty store.
func RunGroupDBSuite(t *testing.T, newDB func(t *testing.T) dbt.GroupDBWrapper) {
	tests := []struct {
		name string
		run  func(t *testing.T, store dbt.GroupDBWrapper)
	}{
		{"Group", testGroup},
		{"Members", testMembers},
		{"CreateExpense", testCreateExpense},
		{"CreateExpenseIsAtomic", testCreateExpenseIsAtomic},
		{"SharesKeepEntryOrder", testSharesKeepEntryOrder},
		{"ListExpensesNewestFirst", testListExpensesNewestFirst},
		{"UpdateExpense", testUpdateExpense},
		{"DeleteExpense", testDeleteExpense},
		{"SetSharePaid", testSetSharePaid},
		{"DataLoaders", testDataLoaders},
		{"DeleteGroupCascades", testDeleteGroupCascades},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run(t, newDB(t))
		})
	}
}

const (
	alice ledger.UserID = "alice"
	bob   ledger.UserID = "bob"
	carol ledger.UserID = "carol"
)

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// NewGroup creates a group with the given members, the first one being the organizer.
func NewGroup(t *testing.T, store dbt.GroupDBWrapper, users ...ledger.UserID) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	groupID := uuid.New()
	creator := ledger.UserID("")
	if len(users) > 0 {
		creator = users[0]
	}
	require.NoError(t, store.CreateGroup(ctx, &dbt.GroupInfo{
		ID:          groupID,
		Title:       "Goa",
		Destination: "Goa, India",
		CreatorID:   creator,
	}))
	for i, u := range users {
		role := dbt.RoleMember
		if i == 0 {
			role = dbt.RoleOrganizer
		}
		require.NoError(t, store.AddMember(ctx, &dbt.Member{GroupID: groupID, UserID: u, Name: string(u), Role: role}))
	}
	return groupID
}

// NewExpense builds an unsaved expense with one unpaid share per entry of shares.
func NewExpense(groupID uuid.UUID, payer ledger.UserID, total string, shares map[ledger.UserID]string) *dbt.Expense {
	expense := &dbt.Expense{ExpenseInfo: dbt.ExpenseInfo{
		ID:        uuid.New(),
		GroupID:   groupID,
		Title:     "Dinner",
		Category:  ledger.CategoryFood,
		Amount:    amount(total),
		Currency:  "USD",
		PaidBy:    payer,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}}
	for _, u := range []ledger.UserID{alice, bob, carol} {
		if a, ok := shares[u]; ok {
			expense.Shares = append(expense.Shares, dbt.Share{ID: uuid.New(), UserID: u, Amount: amount(a)})
		}
	}
	return expense
}

func testGroup(t *testing.T, store dbt.GroupDBWrapper) {
	ctx := context.Background()
	groupID := NewGroup(t, store, alice)

	info, err := store.GetGroupInfo(ctx, groupID)
	require.NoError(t, err)
	assert.Equal(t, groupID, info.ID)
	assert.Equal(t, "Goa", info.Title)
	assert.Equal(t, "Goa, India", info.Destination)
	assert.Equal(t, alice, info.CreatorID)
	assert.False(t, info.CreatedAt.IsZero())

	err = store.CreateGroup(ctx, &dbt.GroupInfo{ID: groupID, Title: "again"})
	assert.True(t, errors.Is(err, dbt.ErrAlreadyExists), "got %v", err)

	_, err = store.GetGroupInfo(ctx, uuid.New())
	assert.True(t, errors.Is(err, dbt.ErrNotFound), "got %v", err)
}

func testMembers(t *testing.T, store dbt.GroupDBWrapper) {
	ctx := context.Background()
	groupID := NewGroup(t, store, alice, bob)

	members, err := store.ListMembers(ctx, groupID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	roles := map[ledger.UserID]dbt.Role{}
	for _, m := range members {
		roles[m.UserID] = m.Role
	}
	assert.Equal(t, dbt.RoleOrganizer, roles[alice])
	assert.Equal(t, dbt.RoleMember, roles[bob])

	err = store.AddMember(ctx, &dbt.Member{GroupID: groupID, UserID: bob, Role: dbt.RoleMember})
	assert.True(t, errors.Is(err, dbt.ErrAlreadyExists), "got %v", err)

	err = store.AddMember(ctx, &dbt.Member{GroupID: uuid.New(), UserID: carol, Role: dbt.RoleMember})
	assert.True(t, errors.Is(err, dbt.ErrNotFound), "got %v", err)

	require.NoError(t, store.RemoveMember(ctx, groupID, bob))
	members, err = store.ListMembers(ctx, groupID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, alice, members[0].UserID)

	err = store.RemoveMember(ctx, groupID, bob)
	assert.True(t, errors.Is(err, dbt.ErrNotFound), "got %v", err)
}

func testCreateExpense(t *testing.T, store dbt.GroupDBWrapper) {
	ctx := context.Background()
	groupID := NewGroup(t, store, alice, bob, carol)

	expense := NewExpense(groupID, alice, "120", map[ledger.UserID]string{alice: "40", bob: "40", carol: "40"})
	require.NoError(t, store.CreateExpense(ctx, expense))

	got, err := store.GetExpense(ctx, expense.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dinner", got.Title)
	assert.Equal(t, ledger.CategoryFood, got.Category)
	assert.True(t, amount("120").Equal(got.Amount), "amount %s", got.Amount)
	assert.Equal(t, "USD", got.Currency)
	assert.Equal(t, alice, got.PaidBy)
	assert.WithinDuration(t, expense.CreatedAt, got.CreatedAt, time.Second)
	require.Len(t, got.Shares, 3)
	for _, s := range got.Shares {
		assert.Equal(t, expense.ID, s.ExpenseID)
		assert.True(t, amount("40").Equal(s.Amount))
		assert.False(t, s.IsPaid)
	}

	err = store.CreateExpense(ctx, expense)
	assert.True(t, errors.Is(err, dbt.ErrAlreadyExists), "got %v", err)

	_, err = store.GetExpense(ctx, uuid.New())
	assert.True(t, errors.Is(err, dbt.ErrNotFound), "got %v", err)
}

func testCreateExpenseIsAtomic(t *testing.T, store dbt.GroupDBWrapper) {
	ctx := context.Background()
	groupID := NewGroup(t, store, alice, bob)

	first := NewExpense(groupID, alice, "10", map[ledger.UserID]string{bob: "10"})
	require.NoError(t, store.CreateExpense(ctx, first))

	// the second share reuses a stored share id, so the whole expense must be rejected
	broken := NewExpense(groupID, bob, "20", map[ledger.UserID]string{alice: "10", bob: "10"})
	broken.Shares[1].ID = first.Shares[0].ID
	require.Error(t, store.CreateExpense(ctx, broken))

	_, err := store.GetExpense(ctx, broken.ID)
	assert.True(t, errors.Is(err, dbt.ErrNotFound), "got %v", err)
	_, err = store.GetShare(ctx, broken.Shares[0].ID)
	assert.True(t, errors.Is(err, dbt.ErrNotFound), "got %v", err)

	expenses, err := store.ListExpenses(ctx, groupID)
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, first.ID, expenses[0].ID)
}

func testSharesKeepEntryOrder(t *testing.T, store dbt.GroupDBWrapper) {
	ctx := context.Background()
	groupID := NewGroup(t, store, alice, bob, carol)

	expense := NewExpense(groupID, bob, "30", nil)
	for _, u := range []ledger.UserID{carol, alice, bob} {
		expense.Shares = append(expense.Shares, dbt.Share{ID: uuid.New(), UserID: u, Amount: amount("10")})
	}
	require.NoError(t, store.CreateExpense(ctx, expense))

	want := []ledger.UserID{carol, alice, bob}
	usersOf := func(shares []dbt.Share) []ledger.UserID {
		users := make([]ledger.UserID, 0, len(shares))
		for _, s := range shares {
			users = append(users, s.UserID)
		}
		return users
	}

	got, err := store.GetExpense(ctx, expense.ID)
	require.NoError(t, err)
	assert.Equal(t, want, usersOf(got.Shares))

	loaded, err := store.DataLoaderGetExpenseShares(ctx, []uuid.UUID{expense.ID})
	require.NoError(t, err)
	assert.Equal(t, want, usersOf(loaded[expense.ID]))
}

func testListExpensesNewestFirst(t *testing.T, store dbt.GroupDBWrapper) {
	ctx := context.Background()
	groupID := NewGroup(t, store, alice, bob)
	otherGroup := NewGroup(t, store, carol)

	base := time.Now().UTC().Truncate(time.Second)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		e := NewExpense(groupID, alice, "10", map[ledger.UserID]string{bob: "10"})
		e.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.CreateExpense(ctx, e))
		ids = append(ids, e.ID)
	}
	require.NoError(t, store.CreateExpense(ctx, NewExpense(otherGroup, carol, "5", map[ledger.UserID]string{carol: "5"})))

	expenses, err := store.ListExpenses(ctx, groupID)
	require.NoError(t, err)
	require.Len(t, expenses, 3)
	assert.Equal(t, ids[2], expenses[0].ID)
	assert.Equal(t, ids[1], expenses[1].ID)
	assert.Equal(t, ids[0], expenses[2].ID)

	empty := NewGroup(t, store, bob)
	expenses, err = store.ListExpenses(ctx, empty)
	require.NoError(t, err)
	assert.Empty(t, expenses)
}

func testUpdateExpense(t *testing.T, store dbt.GroupDBWrapper) {
	ctx := context.Background()
	groupID := NewGroup(t, store, alice, bob)
	expense := NewExpense(groupID, alice, "30", map[ledger.UserID]string{alice: "15", bob: "15"})
	require.NoError(t, store.CreateExpense(ctx, expense))

	title := "Late dinner"
	category := ledger.CategoryActivity
	updated, err := store.UpdateExpense(ctx, expense.ID, dbt.ExpenseUpdate{Title: &title, Category: &category})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, category, updated.Category)
	assert.Equal(t, "USD", updated.Currency)

	got, err := store.GetExpense(ctx, expense.ID)
	require.NoError(t, err)
	assert.Equal(t, title, got.Title)
	assert.Equal(t, category, got.Category)
	assert.True(t, amount("30").Equal(got.Amount))

	_, err = store.UpdateExpense(ctx, uuid.New(), dbt.ExpenseUpdate{Title: &title})
	assert.True(t, errors.Is(err, dbt.ErrNotFound), "got %v", err)
}

func testDeleteExpense(t *testing.T, store dbt.GroupDBWrapper) {
	ctx := context.Background()
	groupID := NewGroup(t, store, alice, bob)
	expense := NewExpense(groupID, alice, "30", map[ledger.UserID]string{alice: "15", bob: "15"})
	require.NoError(t, store.CreateExpense(ctx, expense))
	_, err := store.SetSharePaid(ctx, expense.Shares[1].ID, true, bob)
	require.NoError(t, err)

	require.NoError(t, store.DeleteExpense(ctx, expense.ID))

	_, err = store.GetExpense(ctx, expense.ID)
	assert.True(t, errors.Is(err, dbt.ErrNotFound), "got %v", err)
	for _, s := range expense.Shares {
		_, err = store.GetShare(ctx, s.ID)
		assert.True(t, errors.Is(err, dbt.ErrNotFound), "got %v", err)
	}

	err = store.DeleteExpense(ctx, expense.ID)
	assert.True(t, errors.Is(err, dbt.ErrNotFound), "got %v", err)
}

func testSetSharePaid(t *testing.T, store dbt.GroupDBWrapper) {
	ctx := context.Background()
	groupID := NewGroup(t, store, alice, bob)
	expense := NewExpense(groupID, alice, "30", map[ledger.UserID]string{alice: "15", bob: "15"})
	require.NoError(t, store.CreateExpense(ctx, expense))
	shareID := expense.Shares[1].ID

	share, err := store.SetSharePaid(ctx, shareID, true, bob)
	require.NoError(t, err)
	assert.True(t, share.IsPaid)

	// repeating the same value changes nothing
	share, err = store.SetSharePaid(ctx, shareID, true, bob)
	require.NoError(t, err)
	assert.True(t, share.IsPaid)

	share, err = store.SetSharePaid(ctx, shareID, false, alice)
	require.NoError(t, err)
	assert.False(t, share.IsPaid)

	stored, err := store.GetShare(ctx, shareID)
	require.NoError(t, err)
	assert.False(t, stored.IsPaid)
	assert.Equal(t, bob, stored.UserID)

	transitions, err := store.ListShareTransitions(ctx, shareID)
	require.NoError(t, err)
	require.Len(t, transitions, 2)
	assert.Equal(t, bob, transitions[0].Actor)
	assert.False(t, transitions[0].From)
	assert.True(t, transitions[0].To)
	assert.Equal(t, alice, transitions[1].Actor)
	assert.True(t, transitions[1].From)
	assert.False(t, transitions[1].To)

	other, err := store.GetShare(ctx, expense.Shares[0].ID)
	require.NoError(t, err)
	assert.False(t, other.IsPaid)

	_, err = store.SetSharePaid(ctx, uuid.New(), true, bob)
	assert.True(t, errors.Is(err, dbt.ErrNotFound), "got %v", err)
}

func testDataLoaders(t *testing.T, store dbt.GroupDBWrapper) {
	ctx := context.Background()
	groupID := NewGroup(t, store, alice, bob, carol)
	first := NewExpense(groupID, alice, "30", map[ledger.UserID]string{bob: "15", carol: "15"})
	second := NewExpense(groupID, bob, "9", map[ledger.UserID]string{alice: "3", bob: "3", carol: "3"})
	require.NoError(t, store.CreateExpense(ctx, first))
	require.NoError(t, store.CreateExpense(ctx, second))

	missing := uuid.New()
	shares, err := store.DataLoaderGetExpenseShares(ctx, []uuid.UUID{first.ID, second.ID, missing})
	require.NoError(t, err)
	assert.Len(t, shares[first.ID], 2)
	assert.Len(t, shares[second.ID], 3)
	got, ok := shares[missing]
	assert.True(t, ok, "every requested key has an entry")
	assert.Empty(t, got)

	members, err := store.DataLoaderGetGroupMembers(ctx, []uuid.UUID{groupID, missing})
	require.NoError(t, err)
	assert.Len(t, members[groupID], 3)
	got2, ok := members[missing]
	assert.True(t, ok)
	assert.Empty(t, got2)

	loader := dbt.NewGroupDataLoader(store)
	loaded, err := loader.GetExpenseShares.Load(ctx, second.ID)
	require.NoError(t, err)
	assert.Len(t, loaded, 3)
}

func testDeleteGroupCascades(t *testing.T, store dbt.GroupDBWrapper) {
	ctx := context.Background()
	groupID := NewGroup(t, store, alice, bob)
	expense := NewExpense(groupID, alice, "30", map[ledger.UserID]string{alice: "15", bob: "15"})
	require.NoError(t, store.CreateExpense(ctx, expense))

	require.NoError(t, store.DeleteGroup(ctx, groupID))

	_, err := store.GetGroupInfo(ctx, groupID)
	assert.True(t, errors.Is(err, dbt.ErrNotFound), "got %v", err)
	_, err = store.GetExpense(ctx, expense.ID)
	assert.True(t, errors.Is(err, dbt.ErrNotFound), "got %v", err)
	_, err = store.GetShare(ctx, expense.Shares[0].ID)
	assert.True(t, errors.Is(err, dbt.ErrNotFound), "got %v", err)

	err = store.DeleteGroup(ctx, groupID)
	assert.True(t, errors.Is(err, dbt.ErrNotFound), "got %v", err)
}
