package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upExpenseChecks, downExpenseChecks)
}

func upExpenseChecks(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		ALTER TABLE group_expenses
		ADD CONSTRAINT ck_group_expenses_amount CHECK (amount > 0),
		ADD CONSTRAINT ck_group_expenses_currency CHECK (currency ~ '^[A-Z]{3}$'),
		ADD CONSTRAINT ck_group_expenses_category CHECK (category BETWEEN 0 AND 5);
	`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		ALTER TABLE expense_shares
		ADD CONSTRAINT ck_expense_shares_amount CHECK (amount >= 0);
	`)
	return err
}

func downExpenseChecks(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		ALTER TABLE expense_shares
		DROP CONSTRAINT IF EXISTS ck_expense_shares_amount;
	`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		ALTER TABLE group_expenses
		DROP CONSTRAINT IF EXISTS ck_group_expenses_category,
		DROP CONSTRAINT IF EXISTS ck_group_expenses_currency,
		DROP CONSTRAINT IF EXISTS ck_group_expenses_amount;
	`)
	return err
}
