package gcppubsub_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trypie/mq/gcppubsub"
	"trypie/mq/mq"
)

// Start the emulator with: gcloud beta emulators pubsub start --project=test-project
const testProjectID = "test-project"

func getTestWrapper(t *testing.T) *gcppubsub.GCPGroupMessageQueueWrapper {
	t.Helper()
	if os.Getenv("PUBSUB_EMULATOR_HOST") == "" {
		t.Skip("PUBSUB_EMULATOR_HOST not set")
	}
	wrapper, err := gcppubsub.NewGCPGroupMessageQueueWrapper(context.Background(), testProjectID)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, wrapper.Close()) })
	return wrapper
}

func receiveMsgWithTimeout[T any](tb testing.TB, ch <-chan T, timeout time.Duration) (T, bool) {
	tb.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			var zero T
			return zero, false
		}
		return msg, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}

func TestGCPGroupMessageQueueWrapper(t *testing.T) {
	wrapper := getTestWrapper(t)

	assert.Nil(t, wrapper.GetShareMessageQueue(mq.ActionDelete))
	require.NotNil(t, wrapper.GetShareMessageQueue(mq.ActionUpdate))

	t.Run("ExpenseFilteredByGroup", func(t *testing.T) {
		q := wrapper.GetExpenseMessageQueue(mq.ActionUpdate)
		groupID := uuid.New()

		id, sub, err := q.Subscribe(groupID)
		require.NoError(t, err)
		otherID, other, err := q.Subscribe(uuid.New())
		require.NoError(t, err)

		msg := mq.ExpenseMessage{
			ID:       uuid.New(),
			GroupID:  groupID,
			Title:    "Hotel",
			Category: "lodging",
			Amount:   decimal.RequireFromString("210"),
			Currency: "JPY",
			PaidBy:   "carol",
		}
		require.NoError(t, q.Publish(msg))

		got, ok := receiveMsgWithTimeout(t, sub, 10*time.Second)
		require.True(t, ok)
		assert.Equal(t, msg.ID, got.ID)
		assert.True(t, msg.Amount.Equal(got.Amount))

		_, ok = receiveMsgWithTimeout(t, other, time.Second)
		assert.False(t, ok)

		require.NoError(t, q.DeSubscribe(id))
		require.NoError(t, q.DeSubscribe(otherID))
	})

	t.Run("DeSubscribeUnknown", func(t *testing.T) {
		q := wrapper.GetShareMessageQueue(mq.ActionUpdate)
		assert.ErrorIs(t, q.DeSubscribe(uuid.New()), gcppubsub.ErrSubscriberNotFound)
	})
}
