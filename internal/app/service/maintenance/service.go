package maintenance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatflowers/allowance/internal/app/service/catalog"
	"github.com/fatflowers/allowance/internal/app/service/ledger"
	"github.com/fatflowers/allowance/internal/app/service/subscription"
	"github.com/fatflowers/allowance/pkg/config"
	"github.com/fatflowers/allowance/pkg/logctx"
	types "github.com/fatflowers/allowance/pkg/types"

	"go.uber.org/zap"
)

// Service runs the recurring housekeeping routine: daily free-tier grants,
// auto-fix counter cleanup and budget guard backfill. Every step is
// idempotent so the routine can be re-run after a partial failure.
type Service struct {
	cfg          *config.Config
	log          *zap.SugaredLogger
	ledger       *ledger.Service
	catalog      *catalog.Service
	subscription *subscription.Service
}

func NewService(cfg *config.Config, log *zap.SugaredLogger, led *ledger.Service, cat *catalog.Service, sub *subscription.Service) *Service {
	return &Service{cfg: cfg, log: log, ledger: led, catalog: cat, subscription: sub}
}

// RunDaily executes the whole routine for the given day. Per-user failures
// are logged and skipped so one bad row does not starve the rest.
func (s *Service) RunDaily(ctx context.Context, today time.Time) error {
	log := logctx.FromCtx(ctx, s.log)

	granted, err := s.grantFreeDailyBC(ctx, today)
	if err != nil {
		return err
	}

	removed, err := s.ledger.CleanupAutofixCounters(ctx, today)
	if err != nil {
		return err
	}

	guarded, err := s.ensureBudgetGuards(ctx)
	if err != nil {
		return err
	}

	log.Infow("daily maintenance finished",
		"date", today.UTC().Format("2006-01-02"),
		"free_grants", granted, "counters_removed", removed, "guards_ensured", guarded)
	return nil
}

func (s *Service) grantFreeDailyBC(ctx context.Context, today time.Time) (int, error) {
	log := logctx.FromCtx(ctx, s.log)

	subs, err := s.subscription.ListFreePlanSubscriptions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list free plan subscriptions: %w", err)
	}

	granted := 0
	for _, sub := range subs {
		allowance, err := s.ledger.GrantDailyAutofixBC(ctx, sub.UserID, today)
		if err != nil {
			log.Errorw("daily BC grant failed", "user_id", sub.UserID, "error", err)
			continue
		}
		if allowance != nil {
			granted++
		}
	}
	return granted, nil
}

func (s *Service) ensureBudgetGuards(ctx context.Context) (int, error) {
	log := logctx.FromCtx(ctx, s.log)

	subs, err := s.subscription.ListLiveSubscriptions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list live subscriptions: %w", err)
	}

	ensured := 0
	for _, sub := range subs {
		plan, err := s.catalog.GetPlan(ctx, sub.PlanID)
		if err != nil {
			log.Errorw("budget guard plan lookup failed", "user_id", sub.UserID, "plan_id", sub.PlanID, "error", err)
			continue
		}
		capUSD, ok := s.cfg.Billing.BudgetGuardCaps[strings.ToLower(plan.Name)]
		if !ok {
			// Plans without a configured cap run unguarded.
			continue
		}
		if _, err := s.ledger.EnsureBudgetGuard(ctx, sub.UserID, capUSD, types.BudgetGuardBehaviorThrottle, true, "usd"); err != nil {
			log.Errorw("budget guard upsert failed", "user_id", sub.UserID, "error", err)
			continue
		}
		ensured++
	}
	return ensured, nil
}
