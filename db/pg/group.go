package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbt "trypie/db/db"
	"trypie/ledger"
)

// GORMGroupDBWrapper is a GORM-based PostgreSQL implementation of dbt.GroupDBWrapper.
type GORMGroupDBWrapper struct {
	db *gorm.DB
}

func NewGORMGroupDBWrapper(db *gorm.DB) dbt.GroupDBWrapper {
	return &GORMGroupDBWrapper{
		db: db,
	}
}

// translate maps gorm errors onto the store sentinels.
func translate(err error, what string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, dbt.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", what, dbt.ErrAlreadyExists)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%s references a missing row: %w", what, dbt.ErrNotFound)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

func groupFromModel(m GroupModel) *dbt.GroupInfo {
	return &dbt.GroupInfo{
		ID:          m.ID,
		Title:       m.Title,
		Destination: m.Destination,
		CreatorID:   ledger.UserID(m.CreatorID),
		CreatedAt:   m.CreatedAt,
	}
}

func memberFromModel(m MemberModel) dbt.Member {
	return dbt.Member{
		GroupID:   m.GroupID,
		UserID:    ledger.UserID(m.UserID),
		Name:      m.Name,
		AvatarURL: m.AvatarURL,
		Role:      dbt.Role(m.Role),
		JoinedAt:  m.JoinedAt,
	}
}

func expenseFromModel(m ExpenseModel) dbt.ExpenseInfo {
	return dbt.ExpenseInfo{
		ID:        m.ID,
		GroupID:   m.GroupID,
		Title:     m.Title,
		Category:  ledger.Category(m.Category),
		Amount:    m.Amount,
		Currency:  m.Currency,
		PaidBy:    ledger.UserID(m.PaidBy),
		CreatedAt: m.CreatedAt,
	}
}

func shareFromModel(m ShareModel) dbt.Share {
	return dbt.Share{
		ID:        m.ID,
		ExpenseID: m.ExpenseID,
		UserID:    ledger.UserID(m.UserID),
		Amount:    m.Amount,
		IsPaid:    m.IsPaid,
	}
}

func (pgdb *GORMGroupDBWrapper) CreateGroup(ctx context.Context, info *dbt.GroupInfo) error {
	model := GroupModel{
		ID:          info.ID,
		Title:       info.Title,
		Destination: info.Destination,
		CreatorID:   string(info.CreatorID),
		CreatedAt:   info.CreatedAt,
	}
	if err := pgdb.db.WithContext(ctx).Create(&model).Error; err != nil {
		return translate(err, fmt.Sprintf("create group %s", info.ID))
	}
	info.CreatedAt = model.CreatedAt
	return nil
}

func (pgdb *GORMGroupDBWrapper) GetGroupInfo(ctx context.Context, id uuid.UUID) (*dbt.GroupInfo, error) {
	var model GroupModel
	if err := pgdb.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("group %s", id))
	}
	return groupFromModel(model), nil
}

// DeleteGroup relies on ON DELETE CASCADE for members, expenses, shares and transitions.
func (pgdb *GORMGroupDBWrapper) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	result := pgdb.db.WithContext(ctx).Delete(&GroupModel{}, "id = ?", id)
	if result.Error != nil {
		return translate(result.Error, fmt.Sprintf("delete group %s", id))
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("group %s: %w", id, dbt.ErrNotFound)
	}
	return nil
}

func (pgdb *GORMGroupDBWrapper) AddMember(ctx context.Context, member *dbt.Member) error {
	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now().UTC()
	}
	model := MemberModel{
		GroupID:   member.GroupID,
		UserID:    string(member.UserID),
		Name:      member.Name,
		AvatarURL: member.AvatarURL,
		Role:      string(member.Role),
		JoinedAt:  member.JoinedAt,
	}
	if err := pgdb.db.WithContext(ctx).Create(&model).Error; err != nil {
		return translate(err, fmt.Sprintf("member %s of group %s", member.UserID, member.GroupID))
	}
	return nil
}

func (pgdb *GORMGroupDBWrapper) RemoveMember(ctx context.Context, groupID uuid.UUID, userID ledger.UserID) error {
	result := pgdb.db.WithContext(ctx).Delete(&MemberModel{}, "group_id = ? AND user_id = ?", groupID, string(userID))
	if result.Error != nil {
		return translate(result.Error, fmt.Sprintf("remove member %s of group %s", userID, groupID))
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("member %s of group %s: %w", userID, groupID, dbt.ErrNotFound)
	}
	return nil
}

func (pgdb *GORMGroupDBWrapper) ListMembers(ctx context.Context, groupID uuid.UUID) ([]dbt.Member, error) {
	db := pgdb.db.WithContext(ctx)
	if err := db.Select("id").First(&GroupModel{}, "id = ?", groupID).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("group %s", groupID))
	}
	var models []MemberModel
	if err := db.Where("group_id = ?", groupID).Order("joined_at, user_id").Find(&models).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("list members of group %s", groupID))
	}
	members := make([]dbt.Member, 0, len(models))
	for _, m := range models {
		members = append(members, memberFromModel(m))
	}
	return members, nil
}

// CreateExpense inserts the expense row and its shares in one transaction.
func (pgdb *GORMGroupDBWrapper) CreateExpense(ctx context.Context, expense *dbt.Expense) error {
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	expenseModel := ExpenseModel{
		ID:        expense.ID,
		GroupID:   expense.GroupID,
		Title:     expense.Title,
		Category:  int(expense.Category),
		Amount:    expense.Amount,
		Currency:  expense.Currency,
		PaidBy:    string(expense.PaidBy),
		CreatedAt: expense.CreatedAt,
	}
	shareModels := make([]ShareModel, 0, len(expense.Shares))
	for i := range expense.Shares {
		if expense.Shares[i].ID == uuid.Nil {
			expense.Shares[i].ID = uuid.New()
		}
		expense.Shares[i].ExpenseID = expense.ID
		s := expense.Shares[i]
		shareModels = append(shareModels, ShareModel{
			ID:        s.ID,
			ExpenseID: expense.ID,
			UserID:    string(s.UserID),
			Amount:    s.Amount,
			IsPaid:    s.IsPaid,
			Position:  i,
			CreatedAt: expense.CreatedAt,
		})
	}

	err := pgdb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&expenseModel).Error; err != nil {
			return translate(err, fmt.Sprintf("create expense %s", expense.ID))
		}
		if len(shareModels) == 0 {
			return nil
		}
		if err := tx.Create(&shareModels).Error; err != nil {
			return translate(err, fmt.Sprintf("create shares of expense %s", expense.ID))
		}
		return nil
	})
	return err
}

func (pgdb *GORMGroupDBWrapper) GetExpense(ctx context.Context, id uuid.UUID) (*dbt.Expense, error) {
	db := pgdb.db.WithContext(ctx)
	var model ExpenseModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("expense %s", id))
	}
	var shareModels []ShareModel
	if err := db.Where("expense_id = ?", id).Order("position").Find(&shareModels).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("shares of expense %s", id))
	}
	expense := &dbt.Expense{ExpenseInfo: expenseFromModel(model), Shares: make([]dbt.Share, 0, len(shareModels))}
	for _, s := range shareModels {
		expense.Shares = append(expense.Shares, shareFromModel(s))
	}
	return expense, nil
}

// ListExpenses returns the expense rows of a group, newest first.
func (pgdb *GORMGroupDBWrapper) ListExpenses(ctx context.Context, groupID uuid.UUID) ([]dbt.ExpenseInfo, error) {
	db := pgdb.db.WithContext(ctx)
	if err := db.Select("id").First(&GroupModel{}, "id = ?", groupID).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("group %s", groupID))
	}
	var models []ExpenseModel
	if err := db.Where("group_id = ?", groupID).Order("created_at DESC, id DESC").Find(&models).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("list expenses of group %s", groupID))
	}
	expenses := make([]dbt.ExpenseInfo, 0, len(models))
	for _, m := range models {
		expenses = append(expenses, expenseFromModel(m))
	}
	return expenses, nil
}

func (pgdb *GORMGroupDBWrapper) UpdateExpense(ctx context.Context, id uuid.UUID, update dbt.ExpenseUpdate) (*dbt.ExpenseInfo, error) {
	var updated dbt.ExpenseInfo
	err := pgdb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model ExpenseModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "id = ?", id).Error; err != nil {
			return translate(err, fmt.Sprintf("expense %s", id))
		}
		updated = update.Apply(expenseFromModel(model))
		err := tx.Model(&ExpenseModel{}).Where("id = ?", id).Updates(map[string]any{
			"title":      updated.Title,
			"category":   int(updated.Category),
			"currency":   updated.Currency,
			"updated_at": time.Now().UTC(),
		}).Error
		if err != nil {
			return translate(err, fmt.Sprintf("update expense %s", id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteExpense relies on ON DELETE CASCADE for shares and transitions.
func (pgdb *GORMGroupDBWrapper) DeleteExpense(ctx context.Context, id uuid.UUID) error {
	result := pgdb.db.WithContext(ctx).Delete(&ExpenseModel{}, "id = ?", id)
	if result.Error != nil {
		return translate(result.Error, fmt.Sprintf("delete expense %s", id))
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("expense %s: %w", id, dbt.ErrNotFound)
	}
	return nil
}

func (pgdb *GORMGroupDBWrapper) GetShare(ctx context.Context, id uuid.UUID) (*dbt.Share, error) {
	var model ShareModel
	if err := pgdb.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("share %s", id))
	}
	share := shareFromModel(model)
	return &share, nil
}

// SetSharePaid locks the share row, flips the flag when it differs and records the transition.
func (pgdb *GORMGroupDBWrapper) SetSharePaid(ctx context.Context, id uuid.UUID, paid bool, actor ledger.UserID) (*dbt.Share, error) {
	var share dbt.Share
	err := pgdb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model ShareModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "id = ?", id).Error; err != nil {
			return translate(err, fmt.Sprintf("share %s", id))
		}
		share = shareFromModel(model)
		if model.IsPaid == paid {
			return nil
		}

		now := time.Now().UTC()
		err := tx.Model(&ShareModel{}).Where("id = ?", id).Updates(map[string]any{
			"is_paid":    paid,
			"updated_at": now,
		}).Error
		if err != nil {
			return translate(err, fmt.Sprintf("update share %s", id))
		}
		transition := ShareTransitionModel{
			ID:        uuid.New(),
			ShareID:   id,
			Actor:     string(actor),
			FromPaid:  model.IsPaid,
			ToPaid:    paid,
			CreatedAt: now,
		}
		if err := tx.Create(&transition).Error; err != nil {
			return translate(err, fmt.Sprintf("record transition of share %s", id))
		}
		share.IsPaid = paid
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &share, nil
}

func (pgdb *GORMGroupDBWrapper) ListShareTransitions(ctx context.Context, shareID uuid.UUID) ([]dbt.ShareTransition, error) {
	db := pgdb.db.WithContext(ctx)
	if err := db.Select("id").First(&ShareModel{}, "id = ?", shareID).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("share %s", shareID))
	}
	var models []ShareTransitionModel
	if err := db.Where("share_id = ?", shareID).Order("created_at, id").Find(&models).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("transitions of share %s", shareID))
	}
	transitions := make([]dbt.ShareTransition, 0, len(models))
	for _, m := range models {
		transitions = append(transitions, dbt.ShareTransition{
			ID:        m.ID,
			ShareID:   m.ShareID,
			Actor:     ledger.UserID(m.Actor),
			From:      m.FromPaid,
			To:        m.ToPaid,
			CreatedAt: m.CreatedAt,
		})
	}
	return transitions, nil
}

func (pgdb *GORMGroupDBWrapper) DataLoaderGetExpenseShares(ctx context.Context, expenseIDs []uuid.UUID) (map[uuid.UUID][]dbt.Share, error) {
	result := make(map[uuid.UUID][]dbt.Share, len(expenseIDs))
	for _, id := range expenseIDs {
		result[id] = []dbt.Share{}
	}
	if len(expenseIDs) == 0 {
		return result, nil
	}
	var models []ShareModel
	if err := pgdb.db.WithContext(ctx).Where("expense_id IN ?", expenseIDs).Order("expense_id, position").Find(&models).Error; err != nil {
		return nil, translate(err, "load shares")
	}
	for _, m := range models {
		result[m.ExpenseID] = append(result[m.ExpenseID], shareFromModel(m))
	}
	return result, nil
}

func (pgdb *GORMGroupDBWrapper) DataLoaderGetGroupMembers(ctx context.Context, groupIDs []uuid.UUID) (map[uuid.UUID][]dbt.Member, error) {
	result := make(map[uuid.UUID][]dbt.Member, len(groupIDs))
	for _, id := range groupIDs {
		result[id] = []dbt.Member{}
	}
	if len(groupIDs) == 0 {
		return result, nil
	}
	var models []MemberModel
	if err := pgdb.db.WithContext(ctx).Where("group_id IN ?", groupIDs).Order("joined_at, user_id").Find(&models).Error; err != nil {
		return nil, translate(err, "load members")
	}
	for _, m := range models {
		result[m.GroupID] = append(result[m.GroupID], memberFromModel(m))
	}
	return result, nil
}
