package models

import (
	"time"

	"github.com/fatflowers/allowance/pkg/types"

	"gorm.io/datatypes"
)

// CreditTransaction is one append-only entry in the user-facing credit
// journal: positive for recharges, negative for spend. BalanceAfter snapshots
// the available BC balance right after the change.
type CreditTransaction struct {
	ID           string                      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID       string                      `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	Type         types.CreditTransactionType `gorm:"column:type;type:varchar(16);not null" json:"type"`
	Change       int                         `gorm:"column:change;not null" json:"change"`
	Description  string                      `gorm:"column:description;type:varchar(255)" json:"description"`
	BalanceAfter int                         `gorm:"column:balance_after;not null" json:"balance_after"`
	Extra        datatypes.JSONMap           `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	CreatedAt    time.Time                   `json:"created_at"`
}

func (CreditTransaction) TableName() string {
	return "credit_transaction"
}
