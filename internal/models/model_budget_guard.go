package models

import (
	"time"

	"github.com/fatflowers/allowance/pkg/types"
)

// BudgetGuard is a user-configurable monthly spend cap. The nil workspace row
// is the account-wide guard.
type BudgetGuard struct {
	ID                 string                    `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID             string                    `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex:uq_budget_guard_workspace,priority:1" json:"user_id"`
	WorkspaceID        *string                   `gorm:"column:workspace_id;type:varchar(64);uniqueIndex:uq_budget_guard_workspace,priority:2" json:"workspace_id"`
	MonthlyCap         float64                   `gorm:"column:monthly_cap;type:numeric(10,2);not null" json:"monthly_cap"`
	Behavior           types.BudgetGuardBehavior `gorm:"column:behavior;type:varchar(16);not null;default:'throttle'" json:"behavior"`
	Notify             bool                      `gorm:"column:notify;not null;default:true" json:"notify"`
	Currency           string                    `gorm:"column:currency;type:varchar(8);not null;default:'usd'" json:"currency"`
	CurrentWindowSpend float64                   `gorm:"column:current_window_spend;type:numeric(12,2);not null;default:0" json:"current_window_spend"`
	CreatedAt          time.Time                 `json:"created_at"`
	UpdatedAt          time.Time                 `json:"updated_at"`
}

func (BudgetGuard) TableName() string {
	return "budget_guard"
}
