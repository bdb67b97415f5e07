package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upShareTransitions, downShareTransitions)
}

func upShareTransitions(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE share_transitions (
			id UUID PRIMARY KEY,
			share_id UUID NOT NULL,
			actor VARCHAR(255) NOT NULL,
			from_paid BOOLEAN NOT NULL,
			to_paid BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT fk_share_transitions_share
				FOREIGN KEY(share_id)
				REFERENCES expense_shares(id)
				ON DELETE CASCADE
		);
	`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `CREATE INDEX idx_share_transitions_share_id ON share_transitions(share_id, created_at);`)
	return err
}

func downShareTransitions(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS share_transitions;`)
	return err
}
