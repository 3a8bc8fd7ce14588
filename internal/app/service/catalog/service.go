package catalog

import (
	"context"
	"fmt"

	models "github.com/fatflowers/allowance/internal/models"
	"github.com/fatflowers/allowance/pkg/logctx"
	types "github.com/fatflowers/allowance/pkg/types"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PlanSeed is one row of the versioned default catalog. IDs are stable
// forever: subscriptions reference them, so reseeding may change quotas and
// copy but never identifiers.
type PlanSeed struct {
	ID             string
	Name           string
	Description    string
	BCMonthly      int
	RCMonthly      int
	PriceUSD       float64
	TrialDays      int
	SharedMode     types.PlanSharedMode
	PaygEnabled    bool
	UsageBonusRate float64
}

// DefaultPlanSeeds is the fixed baseline tier set.
var DefaultPlanSeeds = []PlanSeed{
	{
		ID:             "11111111-1111-1111-1111-111111111111",
		Name:           "Free",
		Description:    "Starter tier with Auto-fix allowances and PAYG guard rails.",
		BCMonthly:      0,
		RCMonthly:      0,
		PriceUSD:       0,
		TrialDays:      0,
		SharedMode:     types.PlanSharedModeSharedPool,
		PaygEnabled:    true,
		UsageBonusRate: 0.2,
	},
	{
		ID:             "22222222-2222-2222-2222-222222222222",
		Name:           "Pro",
		Description:    "Core plan for growing teams with balanced BC/RC usage.",
		BCMonthly:      400,
		RCMonthly:      6000,
		PriceUSD:       89,
		TrialDays:      1,
		SharedMode:     types.PlanSharedModeSharedPool,
		PaygEnabled:    true,
		UsageBonusRate: 0.2,
	},
	{
		ID:             "33333333-3333-3333-3333-333333333333",
		Name:           "Scale",
		Description:    "High-throughput tier with extended Usage allowance.",
		BCMonthly:      1000,
		RCMonthly:      12000,
		PriceUSD:       225,
		TrialDays:      1,
		SharedMode:     types.PlanSharedModeHybrid,
		PaygEnabled:    true,
		UsageBonusRate: 0.2,
	},
	{
		ID:             "44444444-4444-4444-4444-444444444444",
		Name:           "Enterprise",
		Description:    "Custom contracts with dedicated account management.",
		BCMonthly:      2500,
		RCMonthly:      36000,
		PriceUSD:       0,
		TrialDays:      0,
		SharedMode:     types.PlanSharedModeHybrid,
		PaygEnabled:    true,
		UsageBonusRate: 0.2,
	},
}

func (s PlanSeed) toModel() *models.Plan {
	return &models.Plan{
		ID:             s.ID,
		Name:           s.Name,
		Description:    s.Description,
		BCMonthly:      s.BCMonthly,
		RCMonthly:      s.RCMonthly,
		UsageBonusRate: s.UsageBonusRate,
		TrialDays:      s.TrialDays,
		SharedMode:     s.SharedMode,
		PaygEnabled:    s.PaygEnabled,
		PriceUSD:       s.PriceUSD,
		IsActive:       true,
	}
}

// Service is the read-mostly plan catalog.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

// EnsureDefaultPlans idempotently upserts the seed tiers keyed on their
// stable IDs. Safe to call concurrently: the primary-key upsert cannot create
// duplicates, and identifiers referenced by live subscriptions never change.
func (s *Service) EnsureDefaultPlans(ctx context.Context) ([]*models.Plan, error) {
	plans := lo.Map(DefaultPlanSeeds, func(seed PlanSeed, _ int) *models.Plan { return seed.toModel() })
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "description", "bc_monthly", "rc_monthly", "usage_bonus_rate",
			"trial_days", "shared_mode", "payg_enabled", "price_usd", "is_active",
		}),
	}).Create(plans).Error
	if err != nil {
		return nil, fmt.Errorf("failed to seed default plans: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Debugw("default plans ensured", "count", len(plans))
	return plans, nil
}

// GetPlan loads one plan by ID.
func (s *Service) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	var plan models.Plan
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error; err != nil {
		return nil, fmt.Errorf("failed to load plan %s: %w", id, err)
	}
	return &plan, nil
}

// GetPlanByName loads one plan by its unique name.
func (s *Service) GetPlanByName(ctx context.Context, name string) (*models.Plan, error) {
	var plan models.Plan
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&plan).Error; err != nil {
		return nil, fmt.Errorf("failed to load plan %q: %w", name, err)
	}
	return &plan, nil
}

// ListPlans returns active plans ordered by price.
func (s *Service) ListPlans(ctx context.Context) ([]*models.Plan, error) {
	var plans []*models.Plan
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("price_usd asc, name asc").
		Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}
