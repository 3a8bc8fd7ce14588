package models

import (
	"time"

	"gorm.io/datatypes"
)

// ConsumptionEvent is the append-only audit record of a consumption call.
// Rows are never mutated or deleted; ActionHash is the idempotency key and a
// replay with the same hash returns the original row instead of a new charge.
type ConsumptionEvent struct {
	ID     string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID string `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	// AllowanceID points at the last allowance touched by the drain, if any.
	AllowanceID *string `gorm:"column:allowance_id;type:uuid;default:null" json:"allowance_id"`
	Action      string  `gorm:"column:action;type:varchar(64);not null" json:"action"`
	// Amount is what the caller requested; Deducted is what actually left
	// rollover buckets and allowances (the gap was covered by auto-fix or PAYG).
	Amount          int               `gorm:"column:amount;not null" json:"amount"`
	Deducted        int               `gorm:"column:deducted;not null;default:0" json:"deducted"`
	ComplexityScore int               `gorm:"column:complexity_score;not null;default:0" json:"complexity_score"`
	ActionHash      string            `gorm:"column:action_hash;type:varchar(128);not null;uniqueIndex" json:"action_hash"`
	Extra           datatypes.JSONMap `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	CreatedAt       time.Time         `json:"created_at"`
}

func (ConsumptionEvent) TableName() string {
	return "consumption_event"
}
