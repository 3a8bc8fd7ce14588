package models

import "time"

// RolloverBucket carries unconsumed credit from a prior cycle. Buckets are
// drained before the current-cycle allowance and kept at remain=0 for audit.
type RolloverBucket struct {
	ID          string     `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID      string     `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	AllowanceID string     `gorm:"column:allowance_id;type:uuid;not null;index" json:"allowance_id"`
	Remain      int        `gorm:"column:remain;not null" json:"remain"`
	ExpiresAt   *time.Time `gorm:"column:expires_at;default:null" json:"expires_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (RolloverBucket) TableName() string {
	return "rollover_bucket"
}

func (b *RolloverBucket) Expired(at time.Time) bool {
	return b.ExpiresAt != nil && !b.ExpiresAt.After(at)
}
