package models

import (
	"time"

	"gorm.io/datatypes"
)

// UsageMeterReading is one raw metered sample from infrastructure. Values stay
// fractional here; only consumption rounds to integer credit units.
type UsageMeterReading struct {
	ID          string            `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	WorkspaceID string            `gorm:"column:workspace_id;type:varchar(64);not null;index" json:"workspace_id"`
	UserID      string            `gorm:"column:user_id;type:varchar(64);index" json:"user_id"`
	Metric      string            `gorm:"column:metric;type:varchar(64);not null;index" json:"metric"`
	Value       float64           `gorm:"column:value;type:numeric(16,4);not null" json:"value"`
	Period      string            `gorm:"column:period;type:varchar(32);not null" json:"period"`
	WindowStart time.Time         `gorm:"column:window_start;not null" json:"window_start"`
	WindowEnd   time.Time         `gorm:"column:window_end;not null" json:"window_end"`
	Extra       datatypes.JSONMap `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	CreatedAt   time.Time         `json:"created_at"`
}

func (UsageMeterReading) TableName() string {
	return "usage_meter_reading"
}

// UsageSummary is the additive per-(workspace, metric, period) running total.
type UsageSummary struct {
	ID            string    `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	WorkspaceID   string    `gorm:"column:workspace_id;type:varchar(64);not null;uniqueIndex:uq_usage_summary_period,priority:1" json:"workspace_id"`
	UserID        string    `gorm:"column:user_id;type:varchar(64);index" json:"user_id"`
	Metric        string    `gorm:"column:metric;type:varchar(64);not null;uniqueIndex:uq_usage_summary_period,priority:2" json:"metric"`
	Period        string    `gorm:"column:period;type:varchar(32);not null;uniqueIndex:uq_usage_summary_period,priority:3" json:"period"`
	Value         float64   `gorm:"column:value;type:numeric(16,4);not null" json:"value"`
	OverageAmount float64   `gorm:"column:overage_amount;type:numeric(16,4);not null;default:0" json:"overage_amount"`
	Currency      string    `gorm:"column:currency;type:varchar(8);not null;default:'usd'" json:"currency"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (UsageSummary) TableName() string {
	return "usage_summary"
}
