package credit

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatflowers/allowance/internal/app/service/ledger"
	models "github.com/fatflowers/allowance/internal/models"
	"github.com/fatflowers/allowance/pkg/config"
	"github.com/fatflowers/allowance/pkg/logctx"
	"github.com/fatflowers/allowance/pkg/tool"
	types "github.com/fatflowers/allowance/pkg/types"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrInsufficientCredit is the user-facing translation of an exhausted
// allowance on the credit journal surface.
var ErrInsufficientCredit = errors.New("insufficient credit")

// ErrUnknownPackage rejects recharge calls with an unconfigured package id.
var ErrUnknownPackage = errors.New("unknown recharge package")

// Service is the user-facing credit bridge: recharge packages in, BC spend
// out, with an append-only journal carrying balance snapshots.
type Service struct {
	db     *gorm.DB
	cfg    *config.Config
	log    *zap.SugaredLogger
	ledger *ledger.Service
}

func NewService(db *gorm.DB, cfg *config.Config, log *zap.SugaredLogger, led *ledger.Service) *Service {
	return &Service{db: db, cfg: cfg, log: log, ledger: led}
}

// Packages lists the configured recharge packages.
func (s *Service) Packages() []*config.RechargePackage {
	return s.cfg.Billing.RechargePackages
}

// UsageCost returns the configured BC cost for a well-known action.
func (s *Service) UsageCost(action string, def int) int {
	return s.cfg.GetUsageCost(action, def)
}

// Recharge grants a one-off BC allowance for a purchased package. Callers
// invoke it only after the payment provider confirmed the purchase — never
// speculatively.
func (s *Service) Recharge(ctx context.Context, userID, packageID string) (*models.CreditTransaction, error) {
	pkg := s.cfg.GetRechargePackage(packageID)
	if pkg == nil {
		return nil, fmt.Errorf("recharge for user %s: %w: %s", userID, ErrUnknownPackage, packageID)
	}

	allowance, err := s.ledger.GrantAllowance(ctx, &ledger.GrantAllowanceRequest{
		UserID:         userID,
		Type:           types.CreditTypeBC,
		Total:          pkg.Credits,
		Window:         types.AllowanceWindowMonthly,
		RolloverPolicy: types.RolloverPolicyNone,
		Source:         fmt.Sprintf("recharge::%s::%s", pkg.ID, tool.GenerateUUIDV7()),
		Extra: map[string]any{
			"type":    "recharge",
			"package": pkg.ID,
			"price":   pkg.PriceUSD,
		},
	})
	if err != nil {
		return nil, err
	}

	logctx.FromCtx(ctx, s.log).Infow("credit recharged",
		"user_id", userID, "package", pkg.ID, "credits", pkg.Credits)
	return s.recordTransaction(ctx, userID, pkg.Credits, types.CreditTransactionTypeRecharge,
		fmt.Sprintf("recharge package: %s", pkg.Name), map[string]any{
			"allowance_id": allowance.ID,
			"package":      pkg.ID,
			"price":        pkg.PriceUSD,
		})
}

// Consume spends BC through the ledger and journals the deduction. Exhaustion
// and the daily auto-fix cap both surface as ErrInsufficientCredit here.
func (s *Service) Consume(ctx context.Context, userID string, amount int, reason string, extra map[string]any) (*models.CreditTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("consume credit for user %s: %w", userID, ledger.ErrInvalidAmount)
	}

	result, err := s.ledger.Consume(ctx, &ledger.ConsumeRequest{
		UserID:    userID,
		Type:      types.CreditTypeBC,
		Amount:    amount,
		Action:    reason,
		Extra:     extra,
		AllowPayg: true,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrAllowanceExhausted) || errors.Is(err, ledger.ErrAutoFixLimitExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrInsufficientCredit, err)
		}
		return nil, err
	}

	meta := map[string]any{
		"consumption_event_id": result.Event.ID,
		"autofix":              result.AutofixGrant != nil,
	}
	for k, v := range extra {
		meta[k] = v
	}
	if result.Event.AllowanceID != nil {
		meta["allowance_id"] = *result.Event.AllowanceID
	}
	if result.PaygCharge != nil {
		meta["payg_charge_id"] = result.PaygCharge.ID
	}
	return s.recordTransaction(ctx, userID, -result.Deducted, types.CreditTransactionTypeUsage,
		fmt.Sprintf("credit spend: %s", reason), meta)
}

// Summary reports the current BC balance and lifetime totals.
type Summary struct {
	Balance           int `json:"balance"`
	LifetimeRecharged int `json:"lifetime_recharged"`
	LifetimeConsumed  int `json:"lifetime_consumed"`
}

func (s *Service) GetSummary(ctx context.Context, userID string) (*Summary, error) {
	balance, err := s.ledger.AvailableBalance(ctx, userID, types.CreditTypeBC)
	if err != nil {
		return nil, err
	}

	var earned, spent int64
	if err := s.db.WithContext(ctx).Model(&models.CreditTransaction{}).
		Where("user_id = ? AND change > 0", userID).
		Select("COALESCE(SUM(change), 0)").Scan(&earned).Error; err != nil {
		return nil, fmt.Errorf("failed to sum recharges: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.CreditTransaction{}).
		Where("user_id = ? AND change < 0", userID).
		Select("COALESCE(SUM(change), 0)").Scan(&spent).Error; err != nil {
		return nil, fmt.Errorf("failed to sum spend: %w", err)
	}

	return &Summary{
		Balance:           balance,
		LifetimeRecharged: int(earned),
		LifetimeConsumed:  int(-spent),
	}, nil
}

// GetHistory returns the user's journal entries, newest first.
func (s *Service) GetHistory(ctx context.Context, userID string, limit, offset int) ([]*models.CreditTransaction, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []*models.CreditTransaction
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list credit transactions: %w", err)
	}
	return rows, nil
}

func (s *Service) recordTransaction(ctx context.Context, userID string, change int, txType types.CreditTransactionType, description string, extra map[string]any) (*models.CreditTransaction, error) {
	balance, err := s.ledger.AvailableBalance(ctx, userID, types.CreditTypeBC)
	if err != nil {
		return nil, err
	}
	row := &models.CreditTransaction{
		ID:           tool.GenerateUUIDV7(),
		UserID:       userID,
		Type:         txType,
		Change:       change,
		Description:  description,
		BalanceAfter: balance,
		Extra:        datatypes.JSONMap(extra),
	}
	if row.Extra == nil {
		row.Extra = datatypes.JSONMap{}
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("failed to record credit transaction: %w", err)
	}
	return row, nil
}
