package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	models "github.com/fatflowers/allowance/internal/models"
	"github.com/fatflowers/allowance/pkg/tool"
	types "github.com/fatflowers/allowance/pkg/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// createOverageCharge inserts a pending PAYG charge for the unmet remainder.
// The payment collaborator settles it out-of-band; this ledger never talks to
// a provider.
func (s *Service) createOverageCharge(ctx context.Context, tx *gorm.DB, userID string, creditType types.CreditType, amount int, action string) (*models.OverageCharge, error) {
	charge := &models.OverageCharge{
		ID:          tool.GenerateUUIDV7(),
		UserID:      userID,
		Metric:      string(creditType),
		Amount:      amount,
		Currency:    "usd",
		Status:      types.OverageChargeStatusPending,
		GeneratedAt: time.Now(),
		Extra: datatypes.JSONMap{
			"action": action,
			"source": "consumption_engine",
		},
	}
	if err := tx.WithContext(ctx).Create(charge).Error; err != nil {
		return nil, fmt.Errorf("failed to create overage charge: %w", err)
	}
	return charge, nil
}

// TransitionOverageCharge advances a charge's status (pending -> invoiced ->
// paid/waived). Backward or skipping transitions are rejected.
func (s *Service) TransitionOverageCharge(ctx context.Context, chargeID string, next types.OverageChargeStatus) (*models.OverageCharge, error) {
	var charge *models.OverageCharge
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.OverageCharge
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", chargeID).First(&row).Error; err != nil {
			return fmt.Errorf("failed to load overage charge %s: %w", chargeID, err)
		}
		if err := row.Transition(next, time.Now()); err != nil {
			return err
		}
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("failed to update overage charge %s: %w", chargeID, err)
		}
		charge = &row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return charge, nil
}

// ListOverageCharges returns all charges for a user, newest first.
func (s *Service) ListOverageCharges(ctx context.Context, userID string) ([]*models.OverageCharge, error) {
	var rows []*models.OverageCharge
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("generated_at desc").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list overage charges: %w", err)
	}
	return rows, nil
}

// EnsureBudgetGuard creates or updates the user's account-wide spend guard.
func (s *Service) EnsureBudgetGuard(ctx context.Context, userID string, monthlyCap float64, behavior types.BudgetGuardBehavior, notify bool, currency string) (*models.BudgetGuard, error) {
	if behavior == "" {
		behavior = types.BudgetGuardBehaviorThrottle
	}
	if currency == "" {
		currency = "usd"
	}
	var guard *models.BudgetGuard
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.BudgetGuard
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND workspace_id IS NULL", userID).
			First(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load budget guard: %w", err)
		}
		if err == nil {
			existing.MonthlyCap = monthlyCap
			existing.Behavior = behavior
			existing.Notify = notify
			if existing.Currency == "" {
				existing.Currency = currency
			}
			if err := tx.Save(&existing).Error; err != nil {
				return fmt.Errorf("failed to update budget guard: %w", err)
			}
			guard = &existing
			return nil
		}

		created := &models.BudgetGuard{
			ID:         tool.GenerateUUIDV7(),
			UserID:     userID,
			MonthlyCap: monthlyCap,
			Behavior:   behavior,
			Notify:     notify,
			Currency:   currency,
		}
		if err := tx.Create(created).Error; err != nil {
			return fmt.Errorf("failed to create budget guard: %w", err)
		}
		guard = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return guard, nil
}
