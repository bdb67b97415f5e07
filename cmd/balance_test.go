package cmd

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trypie/ledger"
)

var tripRows = [][]string{
	{"title", "amount", "payer", "members", "shares"},
	{"Dinner", "90", "alice", "alice, bob, carol", ""},
	{"🚕 Taxi", "30", "bob", "alice,bob", "20,10"},
}

func TestParseCSVToExpenses(t *testing.T) {
	expenses, err := ParseCSVToExpenses(tripRows)
	require.NoError(t, err)
	require.Len(t, expenses, 2)

	dinner := expenses[0]
	assert.Equal(t, "Dinner", dinner.Title)
	assert.Equal(t, ledger.UserID("alice"), dinner.PaidBy)
	require.Len(t, dinner.Shares, 3)
	for _, s := range dinner.Shares {
		assert.True(t, decimal.NewFromInt(30).Equal(s.Amount), "%s: %s", s.UserID, s.Amount)
		assert.False(t, s.IsPaid)
	}
	assert.Equal(t, ledger.UserID("carol"), dinner.Shares[2].UserID)

	taxi := expenses[1]
	assert.Equal(t, "Taxi", taxi.Title)
	assert.Equal(t, ledger.CategoryTransport, taxi.Category)
	require.Len(t, taxi.Shares, 2)
	assert.True(t, decimal.NewFromInt(20).Equal(taxi.Shares[0].Amount))
}

func TestParseCSVToExpenses_FourColumns(t *testing.T) {
	expenses, err := ParseCSVToExpenses([][]string{
		{"title", "amount", "payer", "members"},
		{"Museum", "10", "carol", "alice,carol"},
	})
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Len(t, expenses[0].Shares, 2)
}

func TestParseCSVToExpenses_Errors(t *testing.T) {
	header := []string{"title", "amount", "payer", "members", "shares"}
	tests := []struct {
		name string
		row  []string
	}{
		{"ColumnCount", []string{"Dinner", "90", "alice"}},
		{"BadAmount", []string{"Dinner", "ninety", "alice", "alice,bob", ""}},
		{"NegativeAmount", []string{"Dinner", "-5", "alice", "alice,bob", ""}},
		{"NoPayer", []string{"Dinner", "90", " ", "alice,bob", ""}},
		{"NoMembers", []string{"Dinner", "90", "alice", "", ""}},
		{"ShareCount", []string{"Dinner", "90", "alice", "alice,bob", "90"}},
		{"ShareSum", []string{"Dinner", "90", "alice", "alice,bob", "40,40"}},
		{"DuplicateMember", []string{"Dinner", "90", "alice", "alice,alice", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSVToExpenses([][]string{header, tt.row})
			assert.Error(t, err)
		})
	}

	_, err := ParseCSVToExpenses(nil)
	assert.Error(t, err)
}

func TestWriteBalances(t *testing.T) {
	expenses, err := ParseCSVToExpenses(tripRows)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeBalances(&buf, expenses))
	out := buf.String()
	assert.Regexp(t, `alice\s+20\.00\s+60\.00`, out)
	assert.Regexp(t, `bob\s+30\.00\s+20\.00`, out)
	assert.Regexp(t, `carol\s+30\.00\s+0\.00`, out)
	assert.Contains(t, out, "transfers:")

	total := decimal.Zero
	for _, tr := range ledger.SettlementPlan(expenses) {
		assert.Equal(t, ledger.UserID("alice"), tr.To)
		assert.Contains(t, out, string(tr.From)+" -> alice: "+tr.Amount.StringFixed(2))
		total = total.Add(tr.Amount)
	}
	assert.True(t, decimal.NewFromInt(40).Equal(total), total.String())
}

func TestWriteBalances_Settled(t *testing.T) {
	expenses, err := ParseCSVToExpenses([][]string{
		{"title", "amount", "payer", "members"},
		{"Solo", "10", "alice", "alice"},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeBalances(&buf, expenses))
	assert.Contains(t, buf.String(), "all settled up")
}

func TestWriteViewerBalances(t *testing.T) {
	expenses, err := ParseCSVToExpenses(tripRows)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeViewerBalances(&buf, expenses, "bob"))
	out := buf.String()
	assert.Contains(t, out, "balances of bob:")
	assert.Contains(t, out, "you owe alice 10.00")
	assert.Contains(t, out, "carol: settled up")
}
