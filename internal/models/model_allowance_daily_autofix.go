package models

import "time"

// AllowanceDailyAutofix counts free-tier auto-fix grants for one calendar day.
// Rows for past dates are purged by the maintenance job.
type AllowanceDailyAutofix struct {
	ID        string    `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID    string    `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex:uq_autofix_user_date,priority:1" json:"user_id"`
	DateKey   string    `gorm:"column:date_key;type:varchar(16);not null;uniqueIndex:uq_autofix_user_date,priority:2" json:"date_key"`
	Consumed  int       `gorm:"column:consumed;not null;default:0" json:"consumed"`
	Limit     int       `gorm:"column:daily_limit;not null;default:3" json:"limit"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AllowanceDailyAutofix) TableName() string {
	return "allowance_daily_autofix"
}

// Exhausted reports whether the daily cap has been reached.
func (a *AllowanceDailyAutofix) Exhausted() bool {
	return a.Consumed >= a.Limit
}

// DateKeyFor formats the calendar-day key used to scope counters.
func DateKeyFor(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
