package pg

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type GroupModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Title       string    `gorm:"size:255;not null"`
	Destination string    `gorm:"size:255;not null"`
	CreatorID   string    `gorm:"size:255;not null"`
	// meta data
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (GroupModel) TableName() string {
	return "travel_groups"
}

type MemberModel struct {
	GroupID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    string    `gorm:"size:255;primaryKey"`
	Name      string    `gorm:"size:255;not null"`
	AvatarURL string    `gorm:"size:1024;not null"`
	Role      string    `gorm:"size:16;not null"`
	JoinedAt  time.Time `gorm:"not null"`
	// meta data
	UpdatedAt time.Time
}

func (MemberModel) TableName() string {
	return "group_members"
}

type ExpenseModel struct {
	ID       uuid.UUID       `gorm:"type:uuid;primaryKey"`
	GroupID  uuid.UUID       `gorm:"type:uuid;not null"`
	Title    string          `gorm:"size:255;not null"`
	Category int             `gorm:"not null"`
	Amount   decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Currency string          `gorm:"size:3;not null"`
	PaidBy   string          `gorm:"size:255;not null"`
	// meta data
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ExpenseModel) TableName() string {
	return "group_expenses"
}

type ShareModel struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ExpenseID uuid.UUID       `gorm:"type:uuid;not null"`
	UserID    string          `gorm:"size:255;not null"`
	Amount    decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	IsPaid    bool            `gorm:"not null"`
	// Position keeps the order the shares were entered in.
	Position int `gorm:"not null"`
	// meta data
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ShareModel) TableName() string {
	return "expense_shares"
}

// ShareTransitionModel rows are insert only.
type ShareTransitionModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	ShareID   uuid.UUID `gorm:"type:uuid;not null"`
	Actor     string    `gorm:"size:255;not null"`
	FromPaid  bool      `gorm:"not null"`
	ToPaid    bool      `gorm:"not null"`
	CreatedAt time.Time
}

func (ShareTransitionModel) TableName() string {
	return "share_transitions"
}
