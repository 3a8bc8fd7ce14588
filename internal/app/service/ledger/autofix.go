package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	models "github.com/fatflowers/allowance/internal/models"
	"github.com/fatflowers/allowance/pkg/logctx"
	"github.com/fatflowers/allowance/pkg/tool"
	types "github.com/fatflowers/allowance/pkg/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// applyAutofix increments today's counter for the user, creating it on first
// use. Fails with ErrAutoFixLimitExceeded once the daily cap is reached.
// Runs inside the consume transaction so concurrent exhaustion events
// serialize on the counter row.
func (s *Service) applyAutofix(ctx context.Context, tx *gorm.DB, userID string, now time.Time) (*models.AllowanceDailyAutofix, error) {
	dateKey := models.DateKeyFor(now)

	var record models.AllowanceDailyAutofix
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND date_key = ?", userID, dateKey).
		First(&record).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load autofix counter: %w", err)
		}
		record = models.AllowanceDailyAutofix{
			ID:      tool.GenerateUUIDV7(),
			UserID:  userID,
			DateKey: dateKey,
			Limit:   s.cfg.Billing.AutoFixDailyLimit,
		}
	}

	if record.Exhausted() {
		return nil, fmt.Errorf("autofix for user %s on %s (limit %d): %w",
			userID, dateKey, record.Limit, ErrAutoFixLimitExceeded)
	}
	record.Consumed++
	if err := tx.WithContext(ctx).Save(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to save autofix counter: %w", err)
	}
	return &record, nil
}

// GrantDailyAutofixBC idempotently issues the Free tier's daily BC allowance
// for the given day. The allowance lives for one day and never rolls over.
// Returns nil when the daily grant is disabled.
func (s *Service) GrantDailyAutofixBC(ctx context.Context, userID string, today time.Time) (*models.Allowance, error) {
	if s.cfg.Billing.FreeDailyBC <= 0 {
		return nil, nil
	}
	dayStart := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	expiresAt := dayStart.Add(24 * time.Hour)
	source := fmt.Sprintf("autofix_daily_bc::%s", dayStart.Format("2006-01-02"))

	var allowance *models.Allowance
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Allowance
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND source = ? AND type = ?", userID, source, types.CreditTypeBC).
			First(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load daily autofix allowance: %w", err)
		}
		if err == nil {
			existing.Total = s.cfg.Billing.FreeDailyBC
			existing.Used = min(existing.Used, existing.Total)
			existing.ExpiresAt = &expiresAt
			if err := tx.Save(&existing).Error; err != nil {
				return fmt.Errorf("failed to refresh daily autofix allowance: %w", err)
			}
			allowance = &existing
			return nil
		}

		created := &models.Allowance{
			ID:             tool.GenerateUUIDV7(),
			UserID:         userID,
			Type:           types.CreditTypeBC,
			Total:          s.cfg.Billing.FreeDailyBC,
			Window:         types.AllowanceWindowDaily,
			RolloverPolicy: types.RolloverPolicyNone,
			ExpiresAt:      &expiresAt,
			Source:         source,
			Extra: datatypes.JSONMap{
				"source": "auto_fix_daily",
				"date":   dayStart.Format("2006-01-02"),
			},
		}
		if err := tx.Create(created).Error; err != nil {
			return fmt.Errorf("failed to create daily autofix allowance: %w", err)
		}
		allowance = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return allowance, nil
}

// CleanupAutofixCounters purges counter rows dated before the cutoff and
// returns how many were removed.
func (s *Service) CleanupAutofixCounters(ctx context.Context, olderThan time.Time) (int64, error) {
	cutoff := models.DateKeyFor(olderThan)
	res := s.db.WithContext(ctx).
		Where("date_key < ?", cutoff).
		Delete(&models.AllowanceDailyAutofix{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge autofix counters: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		logctx.FromCtx(ctx, s.log).Infow("autofix counters purged", "cutoff", cutoff, "removed", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
