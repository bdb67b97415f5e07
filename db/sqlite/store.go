// Package sqlite is a single file store for small deployments and local use.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	dbt "trypie/db/db"
	"trypie/ledger"
)

//go:embed schema.sql
var schema string

type SQLiteGroupDBWrapper struct {
	db *sql.DB
}

var _ dbt.GroupDBWrapper = (*SQLiteGroupDBWrapper)(nil)

// New opens or creates the database at path and applies the schema.
func New(path string) (*SQLiteGroupDBWrapper, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite serialises writers anyway; one connection avoids SQLITE_BUSY between them
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteGroupDBWrapper{db: db}, nil
}

func (s *SQLiteGroupDBWrapper) Close() error {
	return s.db.Close()
}

func translate(err error, what string) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", what, dbt.ErrNotFound)
	case strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return fmt.Errorf("%s: %w", what, dbt.ErrAlreadyExists)
	case strings.Contains(err.Error(), "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%s references a missing row: %w", what, dbt.ErrNotFound)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteGroupDBWrapper) CreateGroup(ctx context.Context, info *dbt.GroupInfo) error {
	created := toUnix(info.CreatedAt)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO travel_groups (id, title, destination, creator_id, created_at) VALUES (?, ?, ?, ?, ?)",
		info.ID, info.Title, info.Destination, string(info.CreatorID), created,
	)
	if err != nil {
		return translate(err, fmt.Sprintf("create group %s", info.ID))
	}
	info.CreatedAt = fromUnix(created)
	return nil
}

func (s *SQLiteGroupDBWrapper) GetGroupInfo(ctx context.Context, id uuid.UUID) (*dbt.GroupInfo, error) {
	var (
		info    dbt.GroupInfo
		creator string
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, destination, creator_id, created_at FROM travel_groups WHERE id = ?", id,
	).Scan(&info.ID, &info.Title, &info.Destination, &creator, &created)
	if err != nil {
		return nil, translate(err, fmt.Sprintf("group %s", id))
	}
	info.CreatorID = ledger.UserID(creator)
	info.CreatedAt = fromUnix(created)
	return &info, nil
}

func (s *SQLiteGroupDBWrapper) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM travel_groups WHERE id = ?", id)
	if err != nil {
		return translate(err, fmt.Sprintf("delete group %s", id))
	}
	return expectRow(result, fmt.Sprintf("group %s", id))
}

func expectRow(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, dbt.ErrNotFound)
	}
	return nil
}

func (s *SQLiteGroupDBWrapper) AddMember(ctx context.Context, member *dbt.Member) error {
	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_members (group_id, user_id, name, avatar_url, role, joined_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM group_members WHERE group_id = ?))`,
		member.GroupID, string(member.UserID), member.Name, member.AvatarURL, string(member.Role),
		toUnix(member.JoinedAt), member.GroupID,
	)
	if err != nil {
		return translate(err, fmt.Sprintf("member %s of group %s", member.UserID, member.GroupID))
	}
	return nil
}

func (s *SQLiteGroupDBWrapper) RemoveMember(ctx context.Context, groupID uuid.UUID, userID ledger.UserID) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM group_members WHERE group_id = ? AND user_id = ?", groupID, string(userID))
	if err != nil {
		return translate(err, fmt.Sprintf("remove member %s of group %s", userID, groupID))
	}
	return expectRow(result, fmt.Sprintf("member %s of group %s", userID, groupID))
}

func (s *SQLiteGroupDBWrapper) groupExists(ctx context.Context, groupID uuid.UUID) error {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, "SELECT id FROM travel_groups WHERE id = ?", groupID).Scan(&id)
	if err != nil {
		return translate(err, fmt.Sprintf("group %s", groupID))
	}
	return nil
}

const memberColumns = "group_id, user_id, name, avatar_url, role, joined_at"

func scanMember(row rowScanner) (dbt.Member, error) {
	var (
		m            dbt.Member
		user, role   string
		joinedAtNano int64
	)
	if err := row.Scan(&m.GroupID, &user, &m.Name, &m.AvatarURL, &role, &joinedAtNano); err != nil {
		return m, err
	}
	m.UserID = ledger.UserID(user)
	m.Role = dbt.Role(role)
	m.JoinedAt = fromUnix(joinedAtNano)
	return m, nil
}

func (s *SQLiteGroupDBWrapper) ListMembers(ctx context.Context, groupID uuid.UUID) ([]dbt.Member, error) {
	if err := s.groupExists(ctx, groupID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+memberColumns+" FROM group_members WHERE group_id = ? ORDER BY seq", groupID)
	if err != nil {
		return nil, translate(err, fmt.Sprintf("list members of group %s", groupID))
	}
	defer rows.Close()

	members := []dbt.Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// CreateExpense inserts the expense row and its shares in one transaction.
func (s *SQLiteGroupDBWrapper) CreateExpense(ctx context.Context, expense *dbt.Expense) error {
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO group_expenses (id, group_id, title, category, amount, currency, paid_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		expense.ID, expense.GroupID, expense.Title, int(expense.Category), expense.Amount.String(),
		expense.Currency, string(expense.PaidBy), toUnix(expense.CreatedAt),
	)
	if err != nil {
		return translate(err, fmt.Sprintf("create expense %s", expense.ID))
	}

	for i := range expense.Shares {
		share := &expense.Shares[i]
		if share.ID == uuid.Nil {
			share.ID = uuid.New()
		}
		share.ExpenseID = expense.ID
		_, err = tx.ExecContext(ctx,
			"INSERT INTO expense_shares (id, expense_id, user_id, amount, is_paid, position) VALUES (?, ?, ?, ?, ?, ?)",
			share.ID, expense.ID, string(share.UserID), share.Amount.String(), share.IsPaid, i,
		)
		if err != nil {
			return translate(err, fmt.Sprintf("create share %s of expense %s", share.ID, expense.ID))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit expense %s: %w", expense.ID, err)
	}
	return nil
}

const expenseColumns = "id, group_id, title, category, amount, currency, paid_by, created_at"

func scanExpense(row rowScanner) (dbt.ExpenseInfo, error) {
	var (
		e         dbt.ExpenseInfo
		category  int
		payer     string
		createdAt int64
	)
	if err := row.Scan(&e.ID, &e.GroupID, &e.Title, &category, &e.Amount, &e.Currency, &payer, &createdAt); err != nil {
		return e, err
	}
	e.Category = ledger.Category(category)
	e.PaidBy = ledger.UserID(payer)
	e.CreatedAt = fromUnix(createdAt)
	return e, nil
}

const shareColumns = "id, expense_id, user_id, amount, is_paid"

func scanShare(row rowScanner) (dbt.Share, error) {
	var (
		sh   dbt.Share
		user string
	)
	if err := row.Scan(&sh.ID, &sh.ExpenseID, &user, &sh.Amount, &sh.IsPaid); err != nil {
		return sh, err
	}
	sh.UserID = ledger.UserID(user)
	return sh, nil
}

func (s *SQLiteGroupDBWrapper) GetExpense(ctx context.Context, id uuid.UUID) (*dbt.Expense, error) {
	info, err := scanExpense(s.db.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" FROM group_expenses WHERE id = ?", id))
	if err != nil {
		return nil, translate(err, fmt.Sprintf("expense %s", id))
	}
	shares, err := s.DataLoaderGetExpenseShares(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	return &dbt.Expense{ExpenseInfo: info, Shares: shares[id]}, nil
}

// ListExpenses returns the expense rows of a group, newest first.
func (s *SQLiteGroupDBWrapper) ListExpenses(ctx context.Context, groupID uuid.UUID) ([]dbt.ExpenseInfo, error) {
	if err := s.groupExists(ctx, groupID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+expenseColumns+" FROM group_expenses WHERE group_id = ? ORDER BY created_at DESC, id DESC", groupID)
	if err != nil {
		return nil, translate(err, fmt.Sprintf("list expenses of group %s", groupID))
	}
	defer rows.Close()

	expenses := []dbt.ExpenseInfo{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (s *SQLiteGroupDBWrapper) UpdateExpense(ctx context.Context, id uuid.UUID, update dbt.ExpenseUpdate) (*dbt.ExpenseInfo, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	info, err := scanExpense(tx.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" FROM group_expenses WHERE id = ?", id))
	if err != nil {
		return nil, translate(err, fmt.Sprintf("expense %s", id))
	}
	updated := update.Apply(info)
	_, err = tx.ExecContext(ctx,
		"UPDATE group_expenses SET title = ?, category = ?, currency = ? WHERE id = ?",
		updated.Title, int(updated.Category), updated.Currency, id,
	)
	if err != nil {
		return nil, translate(err, fmt.Sprintf("update expense %s", id))
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit expense %s: %w", id, err)
	}
	return &updated, nil
}

func (s *SQLiteGroupDBWrapper) DeleteExpense(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM group_expenses WHERE id = ?", id)
	if err != nil {
		return translate(err, fmt.Sprintf("delete expense %s", id))
	}
	return expectRow(result, fmt.Sprintf("expense %s", id))
}

func (s *SQLiteGroupDBWrapper) GetShare(ctx context.Context, id uuid.UUID) (*dbt.Share, error) {
	share, err := scanShare(s.db.QueryRowContext(ctx,
		"SELECT "+shareColumns+" FROM expense_shares WHERE id = ?", id))
	if err != nil {
		return nil, translate(err, fmt.Sprintf("share %s", id))
	}
	return &share, nil
}

func (s *SQLiteGroupDBWrapper) SetSharePaid(ctx context.Context, id uuid.UUID, paid bool, actor ledger.UserID) (*dbt.Share, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	share, err := scanShare(tx.QueryRowContext(ctx,
		"SELECT "+shareColumns+" FROM expense_shares WHERE id = ?", id))
	if err != nil {
		return nil, translate(err, fmt.Sprintf("share %s", id))
	}
	if share.IsPaid == paid {
		return &share, nil
	}

	if _, err := tx.ExecContext(ctx, "UPDATE expense_shares SET is_paid = ? WHERE id = ?", paid, id); err != nil {
		return nil, translate(err, fmt.Sprintf("update share %s", id))
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO share_transitions (id, share_id, actor, from_paid, to_paid, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM share_transitions WHERE share_id = ?))`,
		uuid.New(), id, string(actor), share.IsPaid, paid, toUnix(time.Time{}), id,
	)
	if err != nil {
		return nil, translate(err, fmt.Sprintf("record transition of share %s", id))
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit share %s: %w", id, err)
	}
	share.IsPaid = paid
	return &share, nil
}

func (s *SQLiteGroupDBWrapper) ListShareTransitions(ctx context.Context, shareID uuid.UUID) ([]dbt.ShareTransition, error) {
	if _, err := s.GetShare(ctx, shareID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, share_id, actor, from_paid, to_paid, created_at FROM share_transitions WHERE share_id = ? ORDER BY seq", shareID)
	if err != nil {
		return nil, translate(err, fmt.Sprintf("transitions of share %s", shareID))
	}
	defer rows.Close()

	transitions := []dbt.ShareTransition{}
	for rows.Next() {
		var (
			tr        dbt.ShareTransition
			actor     string
			createdAt int64
		)
		if err := rows.Scan(&tr.ID, &tr.ShareID, &actor, &tr.From, &tr.To, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr.Actor = ledger.UserID(actor)
		tr.CreatedAt = fromUnix(createdAt)
		transitions = append(transitions, tr)
	}
	return transitions, rows.Err()
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func uuidArgs(ids []uuid.UUID) []any {
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}

func (s *SQLiteGroupDBWrapper) DataLoaderGetExpenseShares(ctx context.Context, expenseIDs []uuid.UUID) (map[uuid.UUID][]dbt.Share, error) {
	result := make(map[uuid.UUID][]dbt.Share, len(expenseIDs))
	for _, id := range expenseIDs {
		result[id] = []dbt.Share{}
	}
	if len(expenseIDs) == 0 {
		return result, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+shareColumns+" FROM expense_shares WHERE expense_id IN ("+placeholders(len(expenseIDs))+") ORDER BY expense_id, position",
		uuidArgs(expenseIDs)...)
	if err != nil {
		return nil, translate(err, "load shares")
	}
	defer rows.Close()

	for rows.Next() {
		share, err := scanShare(rows)
		if err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		result[share.ExpenseID] = append(result[share.ExpenseID], share)
	}
	return result, rows.Err()
}

func (s *SQLiteGroupDBWrapper) DataLoaderGetGroupMembers(ctx context.Context, groupIDs []uuid.UUID) (map[uuid.UUID][]dbt.Member, error) {
	result := make(map[uuid.UUID][]dbt.Member, len(groupIDs))
	for _, id := range groupIDs {
		result[id] = []dbt.Member{}
	}
	if len(groupIDs) == 0 {
		return result, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+memberColumns+" FROM group_members WHERE group_id IN ("+placeholders(len(groupIDs))+") ORDER BY group_id, seq",
		uuidArgs(groupIDs)...)
	if err != nil {
		return nil, translate(err, "load members")
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		result[m.GroupID] = append(result[m.GroupID], m)
	}
	return result, rows.Err()
}
