package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatflowers/allowance/internal/app/service/catalog"
	"github.com/fatflowers/allowance/internal/app/service/ledger"
	models "github.com/fatflowers/allowance/internal/models"
	"github.com/fatflowers/allowance/pkg/config"
	"github.com/fatflowers/allowance/pkg/logctx"
	"github.com/fatflowers/allowance/pkg/tool"
	types "github.com/fatflowers/allowance/pkg/types"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service assigns plans to users and keeps exactly one primary subscription
// per user through plan swaps and renewals.
type Service struct {
	db      *gorm.DB
	cfg     *config.Config
	log     *zap.SugaredLogger
	catalog *catalog.Service
	ledger  *ledger.Service
}

func NewService(db *gorm.DB, cfg *config.Config, log *zap.SugaredLogger, cat *catalog.Service, led *ledger.Service) *Service {
	return &Service{db: db, cfg: cfg, log: log, catalog: cat, ledger: led}
}

// GetPrimarySubscription returns the user's live primary subscription, or nil.
func (s *Service) GetPrimarySubscription(ctx context.Context, userID string) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_primary = ? AND status IN ?", userID, true,
			[]types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusTrialing}).
		Order("created_at desc").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load primary subscription: %w", err)
	}
	return &sub, nil
}

// ActivatePlan assigns planID to the user, seeding allowances and converting
// any unconsumed prior-cycle credit into rollover buckets. Idempotent per
// (user, plan): an existing primary subscription is swapped in place, so the
// user never ends up with zero or two primaries.
func (s *Service) ActivatePlan(ctx context.Context, userID, planID, source string) (*models.UserSubscription, error) {
	if _, err := s.catalog.EnsureDefaultPlans(ctx); err != nil {
		return nil, err
	}
	plan, err := s.catalog.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	periodEnd := now.Add(30 * 24 * time.Hour)
	var trialEnd *time.Time
	if plan.TrialDays > 0 {
		t := now.Add(time.Duration(plan.TrialDays) * 24 * time.Hour)
		trialEnd = &t
	}

	var subscription *models.UserSubscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.UserSubscription
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND is_primary = ? AND status IN ?", userID, true,
				[]types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusTrialing}).
			Order("created_at desc").
			First(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load primary subscription: %w", err)
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			existing = models.UserSubscription{
				ID:     tool.GenerateUUIDV7(),
				UserID: userID,
				Extra:  datatypes.JSONMap{},
			}
		}

		existing.PlanID = plan.ID
		existing.PaygEnabled = plan.PaygEnabled
		existing.IsPrimary = true
		existing.CurrentPeriodStart = now
		existing.CurrentPeriodEnd = &periodEnd
		existing.TrialEndsAt = trialEnd
		existing.CanceledAt = nil
		if trialEnd != nil {
			existing.Status = types.SubscriptionStatusTrialing
		} else {
			existing.Status = types.SubscriptionStatusActive
		}
		if existing.Extra == nil {
			existing.Extra = datatypes.JSONMap{}
		}
		existing.Extra["source"] = source

		if err := tx.Save(&existing).Error; err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}
		subscription = &existing

		for _, spec := range allowanceSpecs(plan, periodEnd) {
			if spec.Total <= 0 {
				continue
			}
			spec.UserID = userID
			spec.Source = source
			spec.Extra = map[string]any{
				"plan_name":       plan.Name,
				"source":          source,
				"rollover_policy": string(spec.RolloverPolicy),
			}
			if _, err := s.ledger.UpsertPlanAllowance(ctx, tx, spec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to activate plan %s for user %s: %w", planID, userID, err)
	}

	logctx.FromCtx(ctx, s.log).Infow("plan activated",
		"user_id", userID, "plan", plan.Name, "status", subscription.Status, "source", source)
	return subscription, nil
}

// allowanceSpecs lists the allowances a plan seeds: BC and RC with one-cycle
// rollover, plus a Usage pool derived from the RC quota that never rolls over.
func allowanceSpecs(plan *models.Plan, periodEnd time.Time) []*ledger.GrantAllowanceRequest {
	specs := []*ledger.GrantAllowanceRequest{
		{
			PlanID:         &plan.ID,
			Type:           types.CreditTypeBC,
			Total:          plan.BCMonthly,
			RolloverPolicy: types.RolloverPolicyOneCycle,
			ExpiresAt:      &periodEnd,
		},
		{
			PlanID:         &plan.ID,
			Type:           types.CreditTypeRC,
			Total:          plan.RCMonthly,
			RolloverPolicy: types.RolloverPolicyOneCycle,
			ExpiresAt:      &periodEnd,
		},
	}
	if usage := plan.UsageQuota(); usage > 0 {
		specs = append(specs, &ledger.GrantAllowanceRequest{
			PlanID:         &plan.ID,
			Type:           types.CreditTypeUsage,
			Total:          usage,
			RolloverPolicy: types.RolloverPolicyNone,
			ExpiresAt:      &periodEnd,
		})
	}
	return specs
}

// CancelSubscription marks the primary subscription canceled. Allowance rows
// keep their natural expiry; history is never deleted.
func (s *Service) CancelSubscription(ctx context.Context, userID, reason string) (*models.UserSubscription, error) {
	var subscription *models.UserSubscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.UserSubscription
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND is_primary = ?", userID, true).
			Order("created_at desc").
			First(&existing).Error
		if err != nil {
			return fmt.Errorf("failed to load subscription: %w", err)
		}
		now := time.Now()
		existing.Status = types.SubscriptionStatusCanceled
		existing.CanceledAt = &now
		if existing.Extra == nil {
			existing.Extra = datatypes.JSONMap{}
		}
		existing.Extra["cancel_reason"] = reason
		if err := tx.Save(&existing).Error; err != nil {
			return fmt.Errorf("failed to cancel subscription: %w", err)
		}
		subscription = &existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("subscription canceled", "user_id", userID, "reason", reason)
	return subscription, nil
}

// ListFreePlanSubscriptions returns live primary subscriptions on the Free
// tier; the maintenance job uses it to fan out daily auto-fix grants.
func (s *Service) ListFreePlanSubscriptions(ctx context.Context) ([]*models.UserSubscription, error) {
	freePlan, err := s.catalog.GetPlanByName(ctx, "Free")
	if err != nil {
		return nil, err
	}
	var subs []*models.UserSubscription
	if err := s.db.WithContext(ctx).
		Where("plan_id = ? AND is_primary = ? AND status IN ?", freePlan.ID, true,
			[]types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusTrialing}).
		Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list free plan subscriptions: %w", err)
	}
	return subs, nil
}

// ListLiveSubscriptions returns every live primary subscription, used by
// maintenance to ensure budget guards.
func (s *Service) ListLiveSubscriptions(ctx context.Context) ([]*models.UserSubscription, error) {
	var subs []*models.UserSubscription
	if err := s.db.WithContext(ctx).
		Where("is_primary = ? AND status IN ?", true,
			[]types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusTrialing}).
		Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list live subscriptions: %w", err)
	}
	return subs, nil
}
