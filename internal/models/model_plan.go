package models

import (
	"time"

	"github.com/fatflowers/allowance/pkg/types"
)

// Plan is an immutable subscription tier definition. Once referenced by an
// active subscription it only changes through the catalog reseed path, which
// preserves user balances via rollover.
type Plan struct {
	ID          string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name        string `gorm:"column:name;type:varchar(64);not null;uniqueIndex" json:"name"`
	Description string `gorm:"column:description;type:text" json:"description"`
	// BCMonthly and RCMonthly are the per-cycle quotas for build and request credits.
	BCMonthly      int                  `gorm:"column:bc_monthly;not null" json:"bc_monthly"`
	RCMonthly      int                  `gorm:"column:rc_monthly;not null" json:"rc_monthly"`
	UsageBonusRate float64              `gorm:"column:usage_bonus_rate;type:numeric(5,4)" json:"usage_bonus_rate"`
	TrialDays      int                  `gorm:"column:trial_days;not null;default:1" json:"trial_days"`
	SharedMode     types.PlanSharedMode `gorm:"column:shared_mode;type:varchar(32);not null" json:"shared_mode"`
	PaygEnabled    bool                 `gorm:"column:payg_enabled;not null;default:true" json:"payg_enabled"`
	PriceUSD       float64              `gorm:"column:price_usd;type:numeric(10,2);not null" json:"price_usd"`
	IsActive       bool                 `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

func (Plan) TableName() string {
	return "plan"
}

// IsFree reports whether this is the lowest free tier, the only tier eligible
// for daily auto-fix grants.
func (p *Plan) IsFree() bool {
	return p != nil && p.Name == "Free"
}

// UsageQuota derives the per-cycle Usage allowance from the RC quota.
func (p *Plan) UsageQuota() int {
	return int(float64(p.RCMonthly) * p.UsageBonusRate)
}
