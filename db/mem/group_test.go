package mem_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbt "trypie/db/db"
	"trypie/db/dbtest"
	"trypie/db/mem"
	"trypie/ledger"
)

func setupTest(t *testing.T) dbt.GroupDBWrapper {
	return mem.NewInMemoryGroupDBWrapper()
}

func TestGroupDBWrapper(t *testing.T) {
	dbtest.RunGroupDBSuite(t, setupTest)
}

func TestReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	store := setupTest(t)
	groupID := dbtest.NewGroup(t, store, "alice", "bob")
	expense := dbtest.NewExpense(groupID, "alice", "20", map[ledger.UserID]string{"alice": "10", "bob": "10"})
	require.NoError(t, store.CreateExpense(ctx, expense))

	got, err := store.GetExpense(ctx, expense.ID)
	require.NoError(t, err)
	got.Title = "changed"
	got.Shares[0].IsPaid = true

	again, err := store.GetExpense(ctx, expense.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dinner", again.Title)
	assert.False(t, again.Shares[0].IsPaid)
}

func TestConcurrentToggles(t *testing.T) {
	ctx := context.Background()
	store := setupTest(t)
	groupID := dbtest.NewGroup(t, store, "alice", "bob")
	expense := dbtest.NewExpense(groupID, "alice", "20", map[ledger.UserID]string{"alice": "10", "bob": "10"})
	require.NoError(t, store.CreateExpense(ctx, expense))
	shareID := expense.Shares[1].ID

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(paid bool) {
			defer wg.Done()
			_, err := store.SetSharePaid(ctx, shareID, paid, "bob")
			assert.NoError(t, err)
		}(i%2 == 0)
	}
	wg.Wait()

	share, err := store.GetShare(ctx, shareID)
	require.NoError(t, err)
	transitions, err := store.ListShareTransitions(ctx, shareID)
	require.NoError(t, err)
	if len(transitions) > 0 {
		assert.Equal(t, share.IsPaid, transitions[len(transitions)-1].To)
	} else {
		assert.False(t, share.IsPaid)
	}
	for i := 1; i < len(transitions); i++ {
		assert.Equal(t, transitions[i-1].To, transitions[i].From)
	}
}
