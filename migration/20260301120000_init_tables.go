package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upInitTables, downInitTables)
}

func upInitTables(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE travel_groups (
			id UUID PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			destination VARCHAR(255) NOT NULL DEFAULT '',
			creator_id VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		CREATE TABLE group_members (
			group_id UUID NOT NULL,
			user_id VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT '',
			avatar_url VARCHAR(1024) NOT NULL DEFAULT '',
			role VARCHAR(16) NOT NULL DEFAULT 'member',
			joined_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (group_id, user_id),
			CONSTRAINT fk_group_members_group
				FOREIGN KEY(group_id)
				REFERENCES travel_groups(id)
				ON DELETE CASCADE
		);
	`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		CREATE TABLE group_expenses (
			id UUID PRIMARY KEY,
			group_id UUID NOT NULL,
			title VARCHAR(255) NOT NULL,
			category INTEGER NOT NULL DEFAULT 5,
			amount NUMERIC(14,2) NOT NULL,
			currency CHAR(3) NOT NULL DEFAULT 'INR',
			paid_by VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT fk_group_expenses_group
				FOREIGN KEY(group_id)
				REFERENCES travel_groups(id)
				ON DELETE CASCADE
		);
	`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `CREATE INDEX idx_group_expenses_group_id_created_at ON group_expenses(group_id, created_at DESC);`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		CREATE TABLE expense_shares (
			id UUID PRIMARY KEY,
			expense_id UUID NOT NULL,
			user_id VARCHAR(255) NOT NULL,
			amount NUMERIC(14,2) NOT NULL,
			is_paid BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT uq_expense_shares_expense_user UNIQUE (expense_id, user_id),
			CONSTRAINT fk_expense_shares_expense
				FOREIGN KEY(expense_id)
				REFERENCES group_expenses(id)
				ON DELETE CASCADE
		);
	`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `CREATE INDEX idx_expense_shares_user_id ON expense_shares(user_id);`)
	return err
}

func downInitTables(ctx context.Context, tx *sql.Tx) error {
	for _, table := range []string{"expense_shares", "group_expenses", "group_members", "travel_groups"} {
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+table+`;`); err != nil {
			return err
		}
	}
	return nil
}
