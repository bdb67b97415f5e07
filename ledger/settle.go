package ledger

import (
	"container/list"
	"sort"

	"github.com/shopspring/decimal"
)

// Position is the unpaid money flowing around one member.
// Credit is what others still owe the member, Debit what the member still owes.
type Position struct {
	UserID UserID
	Credit decimal.Decimal
	Debit  decimal.Decimal
}

// Positions aggregates every unpaid non-payer share into per member positions.
// The result is sorted by user id.
func Positions(expenses []Expense) []Position {
	byUser := make(map[UserID]*Position)
	entry := func(u UserID) *Position {
		if p, ok := byUser[u]; ok {
			return p
		}
		p := &Position{UserID: u, Credit: decimal.Zero, Debit: decimal.Zero}
		byUser[u] = p
		return p
	}

	for _, e := range expenses {
		for _, s := range e.Shares {
			if s.UserID == e.PaidBy || s.IsPaid || s.Amount.IsZero() {
				continue
			}
			entry(e.PaidBy).Credit = entry(e.PaidBy).Credit.Add(s.Amount)
			entry(s.UserID).Debit = entry(s.UserID).Debit.Add(s.Amount)
		}
	}

	result := make([]Position, 0, len(byUser))
	for _, p := range byUser {
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result
}

// NormalizePositions nets credit against debit so each position keeps one side only.
func NormalizePositions(positions []Position) []Position {
	result := make([]Position, 0, len(positions))
	for _, p := range positions {
		net := p.Credit.Sub(p.Debit)
		switch net.Sign() {
		case 1:
			result = append(result, Position{UserID: p.UserID, Credit: net, Debit: decimal.Zero})
		case -1:
			result = append(result, Position{UserID: p.UserID, Credit: decimal.Zero, Debit: net.Neg()})
		default:
			result = append(result, Position{UserID: p.UserID, Credit: decimal.Zero, Debit: decimal.Zero})
		}
	}
	return result
}

// positionQueues splits normalized positions into a debtor and a creditor queue,
// both ordered by amount descending and user id ascending.
func positionQueues(positions []Position) (*list.List, *list.List) {
	var debtors, creditors []Position
	for _, p := range positions {
		if p.Debit.IsPositive() {
			debtors = append(debtors, p)
		} else if p.Credit.IsPositive() {
			creditors = append(creditors, p)
		}
	}

	sort.SliceStable(debtors, func(i, j int) bool {
		if debtors[i].Debit.Equal(debtors[j].Debit) {
			return debtors[i].UserID < debtors[j].UserID
		}
		return debtors[i].Debit.GreaterThan(debtors[j].Debit)
	})
	sort.SliceStable(creditors, func(i, j int) bool {
		if creditors[i].Credit.Equal(creditors[j].Credit) {
			return creditors[i].UserID < creditors[j].UserID
		}
		return creditors[i].Credit.GreaterThan(creditors[j].Credit)
	})

	debtorQueue := list.New()
	for _, p := range debtors {
		debtorQueue.PushBack(p)
	}
	creditorQueue := list.New()
	for _, p := range creditors {
		creditorQueue.PushBack(p)
	}
	return debtorQueue, creditorQueue
}

// SettlementPlan suggests transfers that clear every unpaid share.
// Unlike NetBalance it settles through third members, so A owing B and B owing C
// becomes a single A to C transfer. It is advisory and never changes stored shares.
func SettlementPlan(expenses []Expense) []Transfer {
	debtorQueue, creditorQueue := positionQueues(NormalizePositions(Positions(expenses)))

	var transfers []Transfer
	for creditorQueue.Len() > 0 && debtorQueue.Len() > 0 {
		creditorElem := creditorQueue.Front()
		creditorQueue.Remove(creditorElem)
		creditor := creditorElem.Value.(Position)

		remaining := creditor.Credit
		for remaining.IsPositive() && debtorQueue.Len() > 0 {
			debtorElem := debtorQueue.Front()
			debtorQueue.Remove(debtorElem)
			debtor := debtorElem.Value.(Position)

			amount := decimal.Min(debtor.Debit, remaining)
			transfers = append(transfers, Transfer{From: debtor.UserID, To: creditor.UserID, Amount: amount})
			remaining = remaining.Sub(amount)

			if left := debtor.Debit.Sub(amount); left.IsPositive() {
				debtor.Debit = left
				debtorQueue.PushFront(debtor)
			}
		}
	}
	return transfers
}
