package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	dbt "trypie/db/db"
	"trypie/ledger"
	"trypie/libs/diff"
	"trypie/mq/mq"
)

// NewExpense is an expense as entered by a member. Amounts are raw strings.
type NewExpense struct {
	Title    string
	Category string
	Amount   string
	Currency string
	PaidBy   ledger.UserID
	Method   ledger.SplitMethod
	// Members share an equal split. Empty means every member of the group.
	Members []ledger.UserID
	// Custom holds the amounts of a custom split.
	Custom []ledger.CustomEntry
}

// ExpenseEdit changes the descriptive fields of an expense. Amounts and shares are fixed
// once created.
type ExpenseEdit struct {
	Title    *string
	Category *string
	Currency *string
}

// expenseView is the part of an expense that edits can change.
type expenseView struct {
	Title    string `diff:"title"`
	Category string `diff:"category"`
	Currency string `diff:"currency"`
}

func viewOf(info dbt.ExpenseInfo) expenseView {
	return expenseView{Title: info.Title, Category: info.Category.String(), Currency: info.Currency}
}

// CreateExpense validates and splits an expense, then stores it with its shares in one
// write. Nothing is stored when any check fails.
func (s *ExpenseService) CreateExpense(ctx context.Context, actor ledger.UserID, groupID uuid.UUID, in NewExpense) (*dbt.Expense, error) {
	members, _, err := s.requireMember(ctx, groupID, actor)
	if err != nil {
		return nil, err
	}
	expense, err := buildExpense(groupID, members, in)
	if err != nil {
		return nil, err
	}

	if err := s.DB.CreateExpense(ctx, expense); err != nil {
		return nil, fmt.Errorf("create expense: %w", err)
	}
	s.publishExpense(mq.ActionCreate, expenseMessage(expense.ExpenseInfo, nil))
	return expense, nil
}

func buildExpense(groupID uuid.UUID, members []dbt.Member, in NewExpense) (*dbt.Expense, error) {
	if err := checkText("title", in.Title, true); err != nil {
		return nil, err
	}
	total, err := ledger.ParseAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	if !total.Equal(total.Round(2)) {
		return nil, invalid("amount", "has more than two decimals")
	}
	currency, err := ledger.NormalizeCurrency(in.Currency)
	if err != nil {
		return nil, err
	}
	category, err := ledger.ParseCategory(in.Category)
	if err != nil {
		return nil, err
	}
	if in.PaidBy == "" {
		return nil, invalid("paid_by", "is required")
	}
	if _, ok := findMember(members, in.PaidBy); !ok {
		return nil, invalid("paid_by", fmt.Sprintf("%s is not a group member", in.PaidBy))
	}

	split, err := ledger.SplitStrategyFactory(in.Method)
	if err != nil {
		return nil, err
	}
	req := ledger.SplitRequest{Members: in.Members, Custom: in.Custom}
	if (in.Method == ledger.SplitEqual || in.Method == "") && len(req.Members) == 0 {
		for _, m := range members {
			req.Members = append(req.Members, m.UserID)
		}
	}
	shares, err := split(total, req)
	if err != nil {
		return nil, err
	}

	expense := &dbt.Expense{
		ExpenseInfo: dbt.ExpenseInfo{
			ID:       uuid.New(),
			GroupID:  groupID,
			Title:    in.Title,
			Category: category,
			Amount:   total,
			Currency: currency,
			PaidBy:   in.PaidBy,
		},
		Shares: make([]dbt.Share, 0, len(shares)),
	}
	for _, sr := range shares {
		if _, ok := findMember(members, sr.UserID); !ok {
			return nil, invalid("shares", fmt.Sprintf("%s is not a group member", sr.UserID))
		}
		expense.Shares = append(expense.Shares, dbt.Share{
			ID:        uuid.New(),
			ExpenseID: expense.ID,
			UserID:    sr.UserID,
			Amount:    sr.Amount,
		})
	}
	return expense, nil
}

// snapshot returns every expense of the group with its shares, newest first.
func (s *ExpenseService) snapshot(ctx context.Context, groupID uuid.UUID) ([]ledger.Expense, error) {
	infos, err := s.DB.ListExpenses(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list expenses of group %s: %w", groupID, err)
	}
	if len(infos) == 0 {
		return []ledger.Expense{}, nil
	}

	ids := make([]uuid.UUID, 0, len(infos))
	for _, info := range infos {
		ids = append(ids, info.ID)
	}
	shares, err := dbt.DataLoaderFrom(ctx, s.DB).GetExpenseShares.LoadAll(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load shares of group %s: %w", groupID, err)
	}

	expenses := make([]ledger.Expense, 0, len(infos))
	for i, info := range infos {
		expenses = append(expenses, dbt.Expense{ExpenseInfo: info, Shares: shares[i]}.ToLedger())
	}
	return expenses, nil
}

// Snapshot is the input of every ledger computation. Clients refetch it after mutations.
func (s *ExpenseService) Snapshot(ctx context.Context, actor ledger.UserID, groupID uuid.UUID) ([]ledger.Expense, error) {
	if _, _, err := s.requireMember(ctx, groupID, actor); err != nil {
		return nil, err
	}
	return s.snapshot(ctx, groupID)
}

// payerExpense loads an expense and checks that actor paid it.
func (s *ExpenseService) payerExpense(ctx context.Context, actor ledger.UserID, id uuid.UUID) (*dbt.Expense, error) {
	expense, err := s.DB.GetExpense(ctx, id)
	if err != nil {
		return nil, err
	}
	if expense.PaidBy != actor {
		return nil, fmt.Errorf("only the payer changes expense %s: %w", id, ErrForbidden)
	}
	return expense, nil
}

func (edit ExpenseEdit) toUpdate() (dbt.ExpenseUpdate, error) {
	var update dbt.ExpenseUpdate
	if edit.Title != nil {
		if err := checkText("title", *edit.Title, true); err != nil {
			return update, err
		}
		update.Title = edit.Title
	}
	if edit.Category != nil {
		category, err := ledger.ParseCategory(*edit.Category)
		if err != nil {
			return update, err
		}
		update.Category = &category
	}
	if edit.Currency != nil {
		currency, err := ledger.NormalizeCurrency(*edit.Currency)
		if err != nil {
			return update, err
		}
		update.Currency = &currency
	}
	return update, nil
}

// UpdateExpense applies an edit by the payer and returns the stored row with the list of
// changed fields.
func (s *ExpenseService) UpdateExpense(ctx context.Context, actor ledger.UserID, id uuid.UUID, edit ExpenseEdit) (*dbt.ExpenseInfo, []diff.Change, error) {
	update, err := edit.toUpdate()
	if err != nil {
		return nil, nil, err
	}
	before, err := s.payerExpense(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}

	after, err := s.DB.UpdateExpense(ctx, id, update)
	if err != nil {
		return nil, nil, fmt.Errorf("update expense %s: %w", id, err)
	}
	changes, err := diff.Changes(viewOf(before.ExpenseInfo), viewOf(*after))
	if err != nil {
		return nil, nil, err
	}
	if len(changes) > 0 {
		s.publishExpense(mq.ActionUpdate, expenseMessage(*after, changes))
	}
	return after, changes, nil
}

// DeleteExpense removes an expense and its shares. Only the payer may do it.
func (s *ExpenseService) DeleteExpense(ctx context.Context, actor ledger.UserID, id uuid.UUID) error {
	expense, err := s.payerExpense(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.DB.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete expense %s: %w", id, err)
	}
	s.publishExpense(mq.ActionDelete, expenseMessage(expense.ExpenseInfo, nil))
	return nil
}

// GetExpense returns one expense with its shares to a member of its group.
func (s *ExpenseService) GetExpense(ctx context.Context, actor ledger.UserID, id uuid.UUID) (*dbt.Expense, error) {
	expense, err := s.DB.GetExpense(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.requireMember(ctx, expense.GroupID, actor); err != nil {
		return nil, err
	}
	return expense, nil
}
