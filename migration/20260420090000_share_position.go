package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upSharePosition, downSharePosition)
}

func upSharePosition(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		ALTER TABLE expense_shares
		ADD COLUMN position INTEGER NOT NULL DEFAULT 0;
	`)
	if err != nil {
		return err
	}

	// rows written before this column existed keep their old order
	_, err = tx.ExecContext(ctx, `
		UPDATE expense_shares AS s
		SET position = o.position
		FROM (
			SELECT id, ROW_NUMBER() OVER (PARTITION BY expense_id ORDER BY created_at, user_id) - 1 AS position
			FROM expense_shares
		) AS o
		WHERE s.id = o.id;
	`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `CREATE INDEX idx_expense_shares_expense_position ON expense_shares(expense_id, position);`)
	return err
}

func downSharePosition(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP INDEX IF EXISTS idx_expense_shares_expense_position;`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		ALTER TABLE expense_shares
		DROP COLUMN IF EXISTS position;
	`)
	return err
}
