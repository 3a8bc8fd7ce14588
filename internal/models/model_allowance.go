package models

import (
	"time"

	"github.com/fatflowers/allowance/pkg/types"

	"gorm.io/datatypes"
)

// Allowance is a cycle-scoped quota of one credit type for a user.
// used only ever grows within a cycle; the consumption engine guarantees
// used <= total inside its transaction scope, not the database schema.
type Allowance struct {
	ID     string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID string `gorm:"column:user_id;type:varchar(64);not null;index:idx_allowance_user_type,priority:1" json:"user_id"`
	// PlanID is nil for one-off grants (recharges, daily auto-fix allowances).
	PlanID         *string               `gorm:"column:plan_id;type:uuid;index" json:"plan_id"`
	Type           types.CreditType      `gorm:"column:type;type:varchar(16);not null;index:idx_allowance_user_type,priority:2" json:"type"`
	Total          int                   `gorm:"column:total;not null" json:"total"`
	Used           int                   `gorm:"column:used;not null;default:0" json:"used"`
	Window         types.AllowanceWindow `gorm:"column:window;type:varchar(16);not null" json:"window"`
	RolloverPolicy types.RolloverPolicy  `gorm:"column:rollover_policy;type:varchar(16);not null;default:'none'" json:"rollover_policy"`
	ExpiresAt      *time.Time            `gorm:"column:expires_at;default:null" json:"expires_at"`
	Source         string                `gorm:"column:source;type:varchar(128)" json:"source"`
	Extra          datatypes.JSONMap     `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

func (Allowance) TableName() string {
	return "allowance"
}

// Remaining returns the unconsumed current-cycle balance, never negative.
func (a *Allowance) Remaining() int {
	if a.Total <= a.Used {
		return 0
	}
	return a.Total - a.Used
}

// Expired reports whether the allowance is past its expiry at the given time.
// A nil expiry never expires.
func (a *Allowance) Expired(at time.Time) bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.After(at)
}
