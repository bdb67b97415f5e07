package ledger

import "github.com/shopspring/decimal"

// shareOf returns the first share held by user on e.
func shareOf(e Expense, user UserID) (Share, bool) {
	for _, s := range e.Shares {
		if s.UserID == user {
			return s, true
		}
	}
	return Share{}, false
}

// TotalOwedBy sums the user's unpaid shares on expenses somebody else paid.
// Shares of other members are ignored.
func TotalOwedBy(expenses []Expense, user UserID) decimal.Decimal {
	total := decimal.Zero
	for _, e := range expenses {
		if e.PaidBy == user {
			continue
		}
		if s, ok := shareOf(e, user); ok && !s.IsPaid {
			total = total.Add(s.Amount)
		}
	}
	return total
}

// TotalOwedTo sums every unpaid share of other members on expenses the user paid.
func TotalOwedTo(expenses []Expense, user UserID) decimal.Decimal {
	total := decimal.Zero
	for _, e := range expenses {
		if e.PaidBy != user {
			continue
		}
		for _, s := range e.Shares {
			if s.UserID != e.PaidBy && !s.IsPaid {
				total = total.Add(s.Amount)
			}
		}
	}
	return total
}

// NetBalance nets the direct expenses between a and b:
// b's unpaid shares on a's expenses minus a's unpaid shares on b's expenses.
// A positive result means b owes a. Debts are never routed through a third member.
func NetBalance(expenses []Expense, a, b UserID) decimal.Decimal {
	if a == b {
		return decimal.Zero
	}
	return owedOn(expenses, a, b).Sub(owedOn(expenses, b, a))
}

// owedOn sums ower's unpaid shares on expenses paid by payer.
func owedOn(expenses []Expense, payer, ower UserID) decimal.Decimal {
	total := decimal.Zero
	for _, e := range expenses {
		if e.PaidBy != payer {
			continue
		}
		if s, ok := shareOf(e, ower); ok && !s.IsPaid {
			total = total.Add(s.Amount)
		}
	}
	return total
}

const (
	LabelOwesYou = "owes you"
	LabelYouOwe  = "you owe"
	LabelSettled = "settled up"
)

// BalanceLabel renders a NetBalance result from the first member's point of view.
// The returned amount is always non-negative.
func BalanceLabel(net decimal.Decimal) (string, decimal.Decimal) {
	switch net.Sign() {
	case 1:
		return LabelOwesYou, net
	case -1:
		return LabelYouOwe, net.Abs()
	default:
		return LabelSettled, decimal.Zero
	}
}
