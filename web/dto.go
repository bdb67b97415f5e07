package web

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	dbt "trypie/db/db"
	"trypie/ledger"
	"trypie/libs/diff"
	"trypie/service"
)

// Amounts travel as strings with two decimals.

type memberJSON struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Role      string    `json:"role"`
	JoinedAt  time.Time `json:"joined_at"`
}

type groupJSON struct {
	ID          uuid.UUID    `json:"id"`
	Title       string       `json:"title"`
	Destination string       `json:"destination,omitempty"`
	CreatorID   string       `json:"creator_id"`
	CreatedAt   time.Time    `json:"created_at"`
	Members     []memberJSON `json:"members"`
}

type shareJSON struct {
	ID        uuid.UUID `json:"id"`
	ExpenseID uuid.UUID `json:"expense_id"`
	UserID    string    `json:"user_id"`
	Amount    string    `json:"amount"`
	IsPaid    bool      `json:"is_paid"`
}

type expenseJSON struct {
	ID             uuid.UUID     `json:"id"`
	GroupID        uuid.UUID     `json:"group_id"`
	Title          string        `json:"title"`
	Category       string        `json:"category"`
	CategoryIcon   string        `json:"category_icon"`
	Amount         string        `json:"amount"`
	Currency       string        `json:"currency"`
	CurrencySymbol string        `json:"currency_symbol"`
	PaidBy         string        `json:"paid_by"`
	CreatedAt      time.Time     `json:"created_at"`
	Shares         []shareJSON   `json:"shares,omitempty"`
	Changes        []diff.Change `json:"changes,omitempty"`
}

type transitionJSON struct {
	ID        uuid.UUID `json:"id"`
	ShareID   uuid.UUID `json:"share_id"`
	Actor     string    `json:"actor"`
	From      bool      `json:"from"`
	To        bool      `json:"to"`
	CreatedAt time.Time `json:"created_at"`
}

type memberBalanceJSON struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Net    string `json:"net"`
	Label  string `json:"label"`
	Amount string `json:"amount"`
}

type transferJSON struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type balancesJSON struct {
	Viewer      string              `json:"viewer"`
	TotalOwed   string              `json:"total_owed"`
	TotalOwedTo string              `json:"total_owed_to"`
	Members     []memberBalanceJSON `json:"members"`
	Transfers   []transferJSON      `json:"transfers"`
}

func toMemberJSON(m dbt.Member) memberJSON {
	return memberJSON{
		UserID:    string(m.UserID),
		Name:      m.Name,
		AvatarURL: m.AvatarURL,
		Role:      string(m.Role),
		JoinedAt:  m.JoinedAt,
	}
}

func toMembersJSON(members []dbt.Member) []memberJSON {
	out := make([]memberJSON, 0, len(members))
	for _, m := range members {
		out = append(out, toMemberJSON(m))
	}
	return out
}

func toGroupJSON(g *service.Group) groupJSON {
	return groupJSON{
		ID:          g.ID,
		Title:       g.Title,
		Destination: g.Destination,
		CreatorID:   string(g.CreatorID),
		CreatedAt:   g.CreatedAt,
		Members:     toMembersJSON(g.Members),
	}
}

func toExpenseInfoJSON(info dbt.ExpenseInfo) expenseJSON {
	return expenseJSON{
		ID:             info.ID,
		GroupID:        info.GroupID,
		Title:          info.Title,
		Category:       info.Category.String(),
		CategoryIcon:   info.Category.Icon(),
		Amount:         info.Amount.StringFixed(2),
		Currency:       info.Currency,
		CurrencySymbol: ledger.CurrencySymbol(info.Currency),
		PaidBy:         string(info.PaidBy),
		CreatedAt:      info.CreatedAt,
	}
}

func toShareJSON(s dbt.Share) shareJSON {
	return shareJSON{
		ID:        s.ID,
		ExpenseID: s.ExpenseID,
		UserID:    string(s.UserID),
		Amount:    s.Amount.StringFixed(2),
		IsPaid:    s.IsPaid,
	}
}

func toExpenseJSON(e *dbt.Expense) expenseJSON {
	out := toExpenseInfoJSON(e.ExpenseInfo)
	out.Shares = make([]shareJSON, 0, len(e.Shares))
	for _, s := range e.Shares {
		out.Shares = append(out.Shares, toShareJSON(s))
	}
	return out
}

func toLedgerExpenseJSON(e ledger.Expense) expenseJSON {
	out := expenseJSON{
		ID:             e.ID,
		GroupID:        e.GroupID,
		Title:          e.Title,
		Category:       e.Category.String(),
		CategoryIcon:   e.Category.Icon(),
		Amount:         e.Amount.StringFixed(2),
		Currency:       e.Currency,
		CurrencySymbol: ledger.CurrencySymbol(e.Currency),
		PaidBy:         string(e.PaidBy),
		CreatedAt:      e.CreatedAt,
		Shares:         make([]shareJSON, 0, len(e.Shares)),
	}
	for _, s := range e.Shares {
		out.Shares = append(out.Shares, shareJSON{
			ID:        s.ID,
			ExpenseID: e.ID,
			UserID:    string(s.UserID),
			Amount:    s.Amount.StringFixed(2),
			IsPaid:    s.IsPaid,
		})
	}
	return out
}

func toTransitionsJSON(transitions []dbt.ShareTransition) []transitionJSON {
	out := make([]transitionJSON, 0, len(transitions))
	for _, tr := range transitions {
		out = append(out, transitionJSON{
			ID:        tr.ID,
			ShareID:   tr.ShareID,
			Actor:     string(tr.Actor),
			From:      tr.From,
			To:        tr.To,
			CreatedAt: tr.CreatedAt,
		})
	}
	return out
}

func toBalancesJSON(b *service.Balances) balancesJSON {
	out := balancesJSON{
		Viewer:      string(b.Viewer),
		TotalOwed:   b.TotalOwed.StringFixed(2),
		TotalOwedTo: b.TotalOwedTo.StringFixed(2),
		Members:     make([]memberBalanceJSON, 0, len(b.Members)),
		Transfers:   make([]transferJSON, 0, len(b.Transfers)),
	}
	for _, m := range b.Members {
		out.Members = append(out.Members, memberBalanceJSON{
			UserID: string(m.UserID),
			Name:   m.Name,
			Net:    m.Net.StringFixed(2),
			Label:  m.Label,
			Amount: m.Amount.StringFixed(2),
		})
	}
	for _, tr := range b.Transfers {
		out.Transfers = append(out.Transfers, transferJSON{
			From:   string(tr.From),
			To:     string(tr.To),
			Amount: tr.Amount.StringFixed(2),
		})
	}
	return out
}

// amountField accepts an amount sent as a JSON number or a JSON string.
type amountField string

func (a *amountField) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = amountField(s)
		return nil
	}
	*a = amountField(b)
	return nil
}
