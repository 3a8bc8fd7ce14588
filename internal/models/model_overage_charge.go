package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatflowers/allowance/pkg/types"

	"gorm.io/datatypes"
)

// OverageCharge is a billable PAYG record created when consumption exceeds all
// available pools. Billing against it happens out-of-band.
type OverageCharge struct {
	ID             string                    `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID         string                    `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	WorkspaceID    *string                   `gorm:"column:workspace_id;type:varchar(64);index" json:"workspace_id"`
	Metric         string                    `gorm:"column:metric;type:varchar(64);not null" json:"metric"`
	Amount         int                       `gorm:"column:amount;not null" json:"amount"`
	Currency       string                    `gorm:"column:currency;type:varchar(8);not null;default:'usd'" json:"currency"`
	Status         types.OverageChargeStatus `gorm:"column:status;type:varchar(16);not null;default:'pending'" json:"status"`
	UsageSummaryID *string                   `gorm:"column:usage_summary_id;type:uuid;default:null" json:"usage_summary_id"`
	Extra          datatypes.JSONMap         `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	GeneratedAt    time.Time                 `gorm:"column:generated_at;not null" json:"generated_at"`
	InvoicedAt     *time.Time                `gorm:"column:invoiced_at;default:null" json:"invoiced_at"`
	SettledAt      *time.Time                `gorm:"column:settled_at;default:null" json:"settled_at"`
}

func (OverageCharge) TableName() string {
	return "overage_charge"
}

// ErrInvalidChargeTransition rejects backward or unknown status moves.
var ErrInvalidChargeTransition = errors.New("invalid overage charge transition")

// Transition moves the charge to the next status, enforcing forward-only
// transitions and stamping the matching timestamp.
func (c *OverageCharge) Transition(next types.OverageChargeStatus, at time.Time) error {
	if !c.Status.CanTransitionTo(next) {
		return fmt.Errorf("overage charge %s: %w: %s -> %s", c.ID, ErrInvalidChargeTransition, c.Status, next)
	}
	c.Status = next
	switch next {
	case types.OverageChargeStatusInvoiced:
		c.InvoicedAt = &at
	case types.OverageChargeStatusPaid, types.OverageChargeStatusWaived:
		c.SettledAt = &at
	}
	return nil
}
