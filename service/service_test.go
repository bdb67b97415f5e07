package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbt "trypie/db/db"
	"trypie/db/mem"
	"trypie/ledger"
	"trypie/mq/goch"
	"trypie/mq/mq"
)

const (
	alice ledger.UserID = "alice"
	bob   ledger.UserID = "bob"
	carol ledger.UserID = "carol"
	dave  ledger.UserID = "dave"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertAmount(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Equal(t, d(want).StringFixed(2), got.StringFixed(2), msgAndArgs...)
}

func newTestService(t *testing.T) *ExpenseService {
	t.Helper()
	queues := goch.NewGoChanGroupMessageQueueWrapper(goch.DefaultBufferSize)
	t.Cleanup(func() { _ = queues.Close() })
	return NewExpenseService(mem.NewInMemoryGroupDBWrapper(), queues)
}

// newTrip creates a group organized by alice with bob and carol as members.
func newTrip(t *testing.T, svc *ExpenseService) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	group, err := svc.CreateGroup(ctx, alice, NewGroup{Title: "Goa", Destination: "Goa, India", Name: "Alice"})
	require.NoError(t, err)
	for _, u := range []ledger.UserID{bob, carol} {
		_, err := svc.AddMember(ctx, alice, group.ID, NewMember{UserID: u, Name: string(u)})
		require.NoError(t, err)
	}
	return group.ID
}

func dinner(t *testing.T, svc *ExpenseService, groupID uuid.UUID) *dbt.Expense {
	t.Helper()
	expense, err := svc.CreateExpense(context.Background(), alice, groupID, NewExpense{
		Title:    "Dinner",
		Category: "food",
		Amount:   "120",
		Currency: "USD",
		PaidBy:   alice,
	})
	require.NoError(t, err)
	return expense
}

func shareOf(t *testing.T, expense *dbt.Expense, user ledger.UserID) dbt.Share {
	t.Helper()
	for _, s := range expense.Shares {
		if s.UserID == user {
			return s
		}
	}
	t.Fatalf("no share for %s", user)
	return dbt.Share{}
}

func TestCreateGroup(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, alice, NewGroup{Title: "  Kyoto  "})
	require.NoError(t, err)
	assert.Equal(t, "Kyoto", group.Title)
	assert.Equal(t, alice, group.CreatorID)
	require.Len(t, group.Members, 1)
	assert.Equal(t, dbt.RoleOrganizer, group.Members[0].Role)
	assert.Equal(t, "alice", group.Members[0].Name)

	_, err = svc.CreateGroup(ctx, alice, NewGroup{Title: " "})
	assert.ErrorIs(t, err, ledger.ErrValidation)
	_, err = svc.CreateGroup(ctx, "", NewGroup{Title: "Kyoto"})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	got, err := svc.GetGroup(ctx, alice, group.ID)
	require.NoError(t, err)
	assert.Equal(t, group.ID, got.ID)

	_, err = svc.GetGroup(ctx, bob, group.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.GetGroup(ctx, alice, uuid.New())
	assert.ErrorIs(t, err, dbt.ErrNotFound)
}

func TestMembers(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	ctx := context.Background()
	groupID := newTrip(t, svc)

	members, err := svc.ListMembers(ctx, bob, groupID)
	require.NoError(t, err)
	require.Len(t, members, 3)

	_, err = svc.AddMember(ctx, bob, groupID, NewMember{UserID: dave})
	assert.ErrorIs(t, err, ErrForbidden, "only the organizer adds members")
	_, err = svc.AddMember(ctx, dave, groupID, NewMember{UserID: dave})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.AddMember(ctx, alice, groupID, NewMember{UserID: bob})
	assert.ErrorIs(t, err, dbt.ErrAlreadyExists)
	_, err = svc.AddMember(ctx, alice, groupID, NewMember{})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	member, err := svc.AddMember(ctx, alice, groupID, NewMember{UserID: dave, Name: "Dave", AvatarURL: "https://example.com/d.png"})
	require.NoError(t, err)
	assert.Equal(t, dbt.RoleMember, member.Role)

	t.Run("Remove", func(t *testing.T) {
		assert.ErrorIs(t, svc.RemoveMember(ctx, bob, groupID, dave), ErrForbidden)
		assert.ErrorIs(t, svc.RemoveMember(ctx, alice, groupID, alice), ErrConflict, "organizer stays")
		assert.ErrorIs(t, svc.RemoveMember(ctx, alice, groupID, "nobody"), dbt.ErrNotFound)

		_, err := svc.CreateExpense(ctx, alice, groupID, NewExpense{
			Title: "Dinner", Amount: "90", PaidBy: alice, Members: []ledger.UserID{alice, bob, carol},
		})
		require.NoError(t, err)
		assert.ErrorIs(t, svc.RemoveMember(ctx, alice, groupID, bob), ErrConflict, "bob has a share")

		require.NoError(t, svc.RemoveMember(ctx, dave, groupID, dave), "members may leave")
		_, err = svc.ListMembers(ctx, dave, groupID)
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestCreateExpense_EqualSplitDefaultsToAllMembers(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	groupID := newTrip(t, svc)

	expense := dinner(t, svc, groupID)
	assert.Equal(t, ledger.CategoryFood, expense.Category)
	assert.Equal(t, "USD", expense.Currency)
	require.Len(t, expense.Shares, 3)
	for _, s := range expense.Shares {
		assertAmount(t, "40", s.Amount)
		assert.False(t, s.IsPaid)
	}

	snapshot, err := svc.Snapshot(context.Background(), carol, groupID)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, expense.ID, snapshot[0].ID)
	assert.Len(t, snapshot[0].Shares, 3)
}

func TestCreateExpense_Splits(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	ctx := context.Background()
	groupID := newTrip(t, svc)

	t.Run("EqualSubset", func(t *testing.T) {
		expense, err := svc.CreateExpense(ctx, bob, groupID, NewExpense{
			Title: "Taxi", Amount: "100", PaidBy: bob, Members: []ledger.UserID{alice, bob, carol},
		})
		require.NoError(t, err)
		assert.Equal(t, ledger.DefaultCurrency, expense.Currency)
		assert.Equal(t, ledger.CategoryFood, expense.Category, "no category picked defaults to food")
		for _, s := range expense.Shares {
			assertAmount(t, "33.33", s.Amount)
		}
	})

	t.Run("Custom", func(t *testing.T) {
		expense, err := svc.CreateExpense(ctx, carol, groupID, NewExpense{
			Title:  "🎉 Party",
			Amount: "90",
			PaidBy: carol,
			Method: ledger.SplitCustom,
			Custom: []ledger.CustomEntry{{UserID: alice, Amount: "50"}, {UserID: bob, Amount: "39.995"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "🎉 Party", expense.Title, "titles are stored verbatim")
		require.Len(t, expense.Shares, 2)
		assertAmount(t, "50", shareOf(t, expense, alice).Amount)
	})
}

func TestCreateExpense_Rejections(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	ctx := context.Background()
	groupID := newTrip(t, svc)

	valid := NewExpense{Title: "Lunch", Amount: "60", PaidBy: alice}
	tests := []struct {
		name   string
		mutate func(in *NewExpense)
		actor  ledger.UserID
		want   error
	}{
		{"EmptyTitle", func(in *NewExpense) { in.Title = "  " }, alice, ledger.ErrValidation},
		{"NonNumericAmount", func(in *NewExpense) { in.Amount = "abc" }, alice, ledger.ErrValidation},
		{"ZeroAmount", func(in *NewExpense) { in.Amount = "0" }, alice, ledger.ErrValidation},
		{"NegativeAmount", func(in *NewExpense) { in.Amount = "-5" }, alice, ledger.ErrValidation},
		{"SubCentAmount", func(in *NewExpense) { in.Amount = "10.555" }, alice, ledger.ErrValidation},
		{"MissingPayer", func(in *NewExpense) { in.PaidBy = "" }, alice, ledger.ErrValidation},
		{"PayerNotMember", func(in *NewExpense) { in.PaidBy = dave }, alice, ledger.ErrValidation},
		{"UnknownCategory", func(in *NewExpense) { in.Category = "spa" }, alice, ledger.ErrValidation},
		{"BadCurrency", func(in *NewExpense) { in.Currency = "EURO" }, alice, ledger.ErrValidation},
		{"UnknownMethod", func(in *NewExpense) { in.Method = "percent" }, alice, ledger.ErrValidation},
		{"ShareForStranger", func(in *NewExpense) { in.Members = []ledger.UserID{alice, dave} }, alice, ledger.ErrValidation},
		{"CustomSumMismatch", func(in *NewExpense) {
			in.Method = ledger.SplitCustom
			in.Custom = []ledger.CustomEntry{{UserID: alice, Amount: "30"}, {UserID: bob, Amount: "29.98"}}
		}, alice, ledger.ErrValidation},
		{"CustomNonNumeric", func(in *NewExpense) {
			in.Method = ledger.SplitCustom
			in.Custom = []ledger.CustomEntry{{UserID: alice, Amount: "thirty"}, {UserID: bob, Amount: "30"}}
		}, alice, ledger.ErrValidation},
		{"NotAMember", func(in *NewExpense) {}, dave, ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := svc.CreateExpense(ctx, tt.actor, groupID, in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	snapshot, err := svc.Snapshot(ctx, alice, groupID)
	require.NoError(t, err)
	assert.Empty(t, snapshot, "rejected expenses leave nothing behind")
}

func TestBalances(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	ctx := context.Background()
	groupID := newTrip(t, svc)
	expense := dinner(t, svc, groupID)

	b, err := svc.Balances(ctx, alice, groupID)
	require.NoError(t, err)
	assertAmount(t, "0", b.TotalOwed)
	assertAmount(t, "80", b.TotalOwedTo)
	require.Len(t, b.Members, 2)
	assert.Equal(t, bob, b.Members[0].UserID)
	assert.Equal(t, ledger.LabelOwesYou, b.Members[0].Label)
	assertAmount(t, "40", b.Members[0].Amount)
	assert.Len(t, b.Transfers, 2)

	b, err = svc.Balances(ctx, bob, groupID)
	require.NoError(t, err)
	assertAmount(t, "40", b.TotalOwed)
	assertAmount(t, "0", b.TotalOwedTo)
	assert.Equal(t, alice, b.Members[0].UserID)
	assert.Equal(t, "Alice", b.Members[0].Name)
	assert.Equal(t, ledger.LabelYouOwe, b.Members[0].Label)
	assertAmount(t, "-40", b.Members[0].Net)
	assert.Equal(t, ledger.LabelSettled, b.Members[1].Label, "bob and carol have no direct expenses")

	_, err = svc.SetSharePaid(ctx, bob, shareOf(t, expense, bob).ID, true)
	require.NoError(t, err)

	b, err = svc.Balances(ctx, alice, groupID)
	require.NoError(t, err)
	assertAmount(t, "40", b.TotalOwedTo)
	assert.Equal(t, ledger.LabelSettled, b.Members[0].Label)

	_, err = svc.Balances(ctx, dave, groupID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSetSharePaid(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	ctx := context.Background()
	groupID := newTrip(t, svc)
	expense := dinner(t, svc, groupID)
	bobShare := shareOf(t, expense, bob)

	_, err := svc.SetSharePaid(ctx, carol, bobShare.ID, true)
	assert.ErrorIs(t, err, ErrForbidden, "a third member may not settle bob's share")
	_, err = svc.SetSharePaid(ctx, bob, uuid.New(), true)
	assert.ErrorIs(t, err, dbt.ErrNotFound)

	share, err := svc.SetSharePaid(ctx, bob, bobShare.ID, true)
	require.NoError(t, err)
	assert.True(t, share.IsPaid)

	share, err = svc.SetSharePaid(ctx, bob, bobShare.ID, true)
	require.NoError(t, err)
	assert.True(t, share.IsPaid)

	share, err = svc.SetSharePaid(ctx, alice, bobShare.ID, false)
	require.NoError(t, err, "the payer may reopen a share")
	assert.False(t, share.IsPaid)

	history, err := svc.ShareHistory(ctx, carol, bobShare.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, bob, history[0].Actor)
	assert.True(t, history[0].To)
	assert.Equal(t, alice, history[1].Actor)
	assert.False(t, history[1].To)

	_, err = svc.ShareHistory(ctx, dave, bobShare.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestUpdateExpense(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	ctx := context.Background()
	groupID := newTrip(t, svc)
	expense := dinner(t, svc, groupID)

	title := "Beach dinner"
	category := "lodging"
	_, _, err := svc.UpdateExpense(ctx, bob, expense.ID, ExpenseEdit{Title: &title})
	assert.ErrorIs(t, err, ErrForbidden)

	bad := "EURO"
	_, _, err = svc.UpdateExpense(ctx, alice, expense.ID, ExpenseEdit{Currency: &bad})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	info, changes, err := svc.UpdateExpense(ctx, alice, expense.ID, ExpenseEdit{Title: &title, Category: &category})
	require.NoError(t, err)
	assert.Equal(t, title, info.Title)
	assert.Equal(t, ledger.CategoryLodging, info.Category)
	assertAmount(t, "120", info.Amount)
	assert.ElementsMatch(t, []string{"title", "category"}, []string{changes[0].Field, changes[1].Field})

	_, changes, err = svc.UpdateExpense(ctx, alice, expense.ID, ExpenseEdit{Title: &title})
	require.NoError(t, err)
	assert.Empty(t, changes)

	_, _, err = svc.UpdateExpense(ctx, alice, uuid.New(), ExpenseEdit{Title: &title})
	assert.ErrorIs(t, err, dbt.ErrNotFound)
}

func TestDeleteExpense(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	ctx := context.Background()
	groupID := newTrip(t, svc)
	expense := dinner(t, svc, groupID)

	assert.ErrorIs(t, svc.DeleteExpense(ctx, bob, expense.ID), ErrForbidden)
	require.NoError(t, svc.DeleteExpense(ctx, alice, expense.ID))

	_, err := svc.GetExpense(ctx, alice, expense.ID)
	assert.ErrorIs(t, err, dbt.ErrNotFound)
	snapshot, err := svc.Snapshot(ctx, alice, groupID)
	require.NoError(t, err)
	assert.Empty(t, snapshot)
	_, err = svc.SetSharePaid(ctx, bob, shareOf(t, expense, bob).ID, true)
	assert.ErrorIs(t, err, dbt.ErrNotFound)
}

func receiveEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case e, ok := <-events:
		require.True(t, ok, "event stream closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return Event{}
	}
}

func TestEvents(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	groupID := newTrip(t, svc)

	_, err := svc.Events(context.Background(), dave, groupID)
	assert.ErrorIs(t, err, ErrForbidden)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := svc.Events(ctx, carol, groupID)
	require.NoError(t, err)

	expense := dinner(t, svc, groupID)
	e := receiveEvent(t, events)
	assert.Equal(t, EventKindExpense, e.Kind)
	assert.Equal(t, mq.ActionCreate.String(), e.Action)
	require.NotNil(t, e.Expense)
	assert.Equal(t, expense.ID, e.Expense.ID)

	_, err = svc.SetSharePaid(context.Background(), bob, shareOf(t, expense, bob).ID, true)
	require.NoError(t, err)
	e = receiveEvent(t, events)
	assert.Equal(t, EventKindShare, e.Kind)
	require.NotNil(t, e.Share)
	assert.True(t, e.Share.IsPaid)
	assert.Equal(t, bob, e.Share.Actor)

	title := "Sunset dinner"
	_, _, err = svc.UpdateExpense(context.Background(), alice, expense.ID, ExpenseEdit{Title: &title})
	require.NoError(t, err)
	e = receiveEvent(t, events)
	assert.Equal(t, mq.ActionUpdate.String(), e.Action)
	require.NotNil(t, e.Expense)
	require.Len(t, e.Expense.Changes, 1)
	assert.Equal(t, "Sunset dinner", e.Expense.Changes[0].To)

	cancel()
	select {
	case _, ok := <-events:
		for ok {
			_, ok = <-events
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after cancel")
	}
}
