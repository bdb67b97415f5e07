package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

const (
	alice UserID = "alice"
	bob   UserID = "bob"
	carol UserID = "carol"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertAmount(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Equal(t, d(want).StringFixed(2), got.StringFixed(2), msgAndArgs...)
}

func newExpense(payer UserID, amount string, shares ...Share) Expense {
	for i := range shares {
		shares[i].ID = uuid.New()
	}
	return Expense{
		ID:       uuid.New(),
		Title:    "expense",
		Amount:   d(amount),
		Currency: "USD",
		PaidBy:   payer,
		Shares:   shares,
	}
}

func share(user UserID, amount string, paid bool) Share {
	return Share{UserID: user, Amount: d(amount), IsPaid: paid}
}

func dinnerExpenses() []Expense {
	shares, _ := EqualSplit(d("120"), []UserID{alice, bob, carol})
	e := newExpense(alice, "120")
	e.Title = "Dinner"
	for _, s := range shares {
		e.Shares = append(e.Shares, Share{ID: uuid.New(), UserID: s.UserID, Amount: s.Amount})
	}
	return []Expense{e}
}

func TestDinnerScenario(t *testing.T) {
	expenses := dinnerExpenses()

	for _, s := range expenses[0].Shares {
		assertAmount(t, "40", s.Amount, "share of %s", s.UserID)
	}

	assertAmount(t, "80", TotalOwedTo(expenses, alice))
	assertAmount(t, "40", TotalOwedBy(expenses, bob))
	assertAmount(t, "40", TotalOwedBy(expenses, carol))
	assertAmount(t, "0", TotalOwedBy(expenses, alice), "the payer never owes their own share")

	for i, s := range expenses[0].Shares {
		if s.UserID == bob {
			expenses[0].Shares[i].IsPaid = true
		}
	}
	assertAmount(t, "40", TotalOwedTo(expenses, alice))
	assertAmount(t, "0", TotalOwedBy(expenses, bob))
}

func TestNetBalanceTwoExpenses(t *testing.T) {
	expenses := []Expense{
		newExpense(alice, "100", share(alice, "50", false), share(bob, "50", false)),
		newExpense(bob, "60", share(bob, "30", false), share(alice, "30", false)),
	}

	assertAmount(t, "20", NetBalance(expenses, alice, bob))
	assertAmount(t, "-20", NetBalance(expenses, bob, alice))

	label, amount := BalanceLabel(NetBalance(expenses, alice, bob))
	assert.Equal(t, LabelOwesYou, label)
	assertAmount(t, "20", amount)

	label, amount = BalanceLabel(NetBalance(expenses, bob, alice))
	assert.Equal(t, LabelYouOwe, label)
	assertAmount(t, "20", amount)
}

func TestTotalOwedBy(t *testing.T) {
	tests := []struct {
		name     string
		expenses []Expense
		user     UserID
		want     string
	}{
		{
			name:     "no expenses",
			expenses: nil,
			user:     bob,
			want:     "0",
		},
		{
			name:     "unpaid share on foreign expense",
			expenses: []Expense{newExpense(alice, "30", share(bob, "30", false))},
			user:     bob,
			want:     "30",
		},
		{
			name:     "paid share is not owed",
			expenses: []Expense{newExpense(alice, "30", share(bob, "30", true))},
			user:     bob,
			want:     "0",
		},
		{
			name:     "missing share contributes nothing",
			expenses: []Expense{newExpense(alice, "30", share(carol, "30", false))},
			user:     bob,
			want:     "0",
		},
		{
			name:     "own expense is skipped",
			expenses: []Expense{newExpense(bob, "30", share(bob, "15", false), share(carol, "15", false))},
			user:     bob,
			want:     "0",
		},
		{
			name: "sums across payers",
			expenses: []Expense{
				newExpense(alice, "30", share(bob, "10.25", false), share(carol, "19.75", false)),
				newExpense(carol, "9", share(bob, "4.50", false), share(carol, "4.50", false)),
			},
			user: bob,
			want: "14.75",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertAmount(t, tt.want, TotalOwedBy(tt.expenses, tt.user))
		})
	}
}

func TestTotalOwedTo(t *testing.T) {
	tests := []struct {
		name     string
		expenses []Expense
		user     UserID
		want     string
	}{
		{
			name:     "sum of other unpaid shares",
			expenses: []Expense{newExpense(alice, "90", share(alice, "30", false), share(bob, "30", false), share(carol, "30", false))},
			user:     alice,
			want:     "60",
		},
		{
			name:     "paid shares excluded",
			expenses: []Expense{newExpense(alice, "90", share(alice, "30", false), share(bob, "30", true), share(carol, "30", false))},
			user:     alice,
			want:     "30",
		},
		{
			name:     "expenses paid by others ignored",
			expenses: []Expense{newExpense(bob, "90", share(alice, "45", false), share(carol, "45", false))},
			user:     alice,
			want:     "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertAmount(t, tt.want, TotalOwedTo(tt.expenses, tt.user))
		})
	}
}

func TestNetBalanceIsAntisymmetric(t *testing.T) {
	sets := [][]Expense{
		nil,
		dinnerExpenses(),
		{
			newExpense(alice, "100", share(alice, "50", false), share(bob, "50", false)),
			newExpense(bob, "60", share(bob, "30", false), share(alice, "30", true)),
			newExpense(carol, "45", share(alice, "15", false), share(bob, "15", false), share(carol, "15", false)),
		},
		{
			newExpense(bob, "10", share(alice, "3.33", false), share(carol, "3.33", false), share(bob, "3.33", false)),
			newExpense(carol, "7", share(bob, "7", false)),
		},
	}
	users := []UserID{alice, bob, carol}

	for _, expenses := range sets {
		for _, a := range users {
			for _, b := range users {
				ab := NetBalance(expenses, a, b)
				ba := NetBalance(expenses, b, a)
				assert.True(t, ab.Equal(ba.Neg()), "NetBalance(%s,%s)=%s NetBalance(%s,%s)=%s", a, b, ab, b, a, ba)
			}
		}
	}
}

func TestNetBalanceDoesNotRouteThroughThirdMember(t *testing.T) {
	expenses := []Expense{
		newExpense(alice, "10", share(bob, "10", false)),
		newExpense(bob, "10", share(carol, "10", false)),
	}

	assertAmount(t, "10", NetBalance(expenses, alice, bob))
	assertAmount(t, "10", NetBalance(expenses, bob, carol))
	assertAmount(t, "0", NetBalance(expenses, alice, carol))
}

func TestTogglePaidRoundTrip(t *testing.T) {
	expenses := []Expense{
		newExpense(alice, "100", share(alice, "25", false), share(bob, "25", false), share(carol, "50", false)),
		newExpense(carol, "12.34", share(alice, "6.17", false), share(carol, "6.17", false)),
	}
	beforeOwedTo := TotalOwedTo(expenses, alice)
	beforeOwedBy := TotalOwedBy(expenses, alice)

	expenses[0].Shares[2].IsPaid = true
	expenses[1].Shares[0].IsPaid = true
	assert.False(t, beforeOwedTo.Equal(TotalOwedTo(expenses, alice)))
	assert.False(t, beforeOwedBy.Equal(TotalOwedBy(expenses, alice)))

	expenses[0].Shares[2].IsPaid = false
	expenses[1].Shares[0].IsPaid = false
	assert.True(t, beforeOwedTo.Equal(TotalOwedTo(expenses, alice)))
	assert.True(t, beforeOwedBy.Equal(TotalOwedBy(expenses, alice)))
}

func TestNetBalanceSameMember(t *testing.T) {
	assertAmount(t, "0", NetBalance(dinnerExpenses(), alice, alice))
	label, _ := BalanceLabel(decimal.Zero)
	assert.Equal(t, LabelSettled, label)
}
