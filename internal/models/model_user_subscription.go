package models

import (
	"time"

	"github.com/fatflowers/allowance/pkg/types"

	"gorm.io/datatypes"
)

// UserSubscription tracks a user's current plan membership. A user holds at
// most one primary subscription at a time; plan swaps update it in place.
type UserSubscription struct {
	ID                 string                   `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID             string                   `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	PlanID             string                   `gorm:"column:plan_id;type:uuid;not null;index" json:"plan_id"`
	Status             types.SubscriptionStatus `gorm:"column:status;type:varchar(32);not null;default:'trialing'" json:"status"`
	PaygEnabled        bool                     `gorm:"column:payg_enabled;not null;default:true" json:"payg_enabled"`
	IsPrimary          bool                     `gorm:"column:is_primary;not null;default:true" json:"is_primary"`
	CurrentPeriodStart time.Time                `gorm:"column:current_period_start;not null" json:"current_period_start"`
	CurrentPeriodEnd   *time.Time               `gorm:"column:current_period_end;default:null" json:"current_period_end"`
	TrialEndsAt        *time.Time               `gorm:"column:trial_ends_at;default:null" json:"trial_ends_at"`
	CanceledAt         *time.Time               `gorm:"column:canceled_at;default:null" json:"canceled_at"`
	Extra              datatypes.JSONMap        `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
}

func (UserSubscription) TableName() string {
	return "user_subscription"
}

// Live reports whether the subscription currently entitles the user to
// allowances (trialing or active).
func (s *UserSubscription) Live() bool {
	return s != nil &&
		(s.Status == types.SubscriptionStatusActive || s.Status == types.SubscriptionStatusTrialing)
}
