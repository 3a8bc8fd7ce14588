package usage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fatflowers/allowance/internal/app/service/ledger"
	models "github.com/fatflowers/allowance/internal/models"
	"github.com/fatflowers/allowance/pkg/logctx"
	"github.com/fatflowers/allowance/pkg/tool"
	types "github.com/fatflowers/allowance/pkg/types"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service ingests metered readings and feeds them into the consumption
// engine against the Usage credit type.
type Service struct {
	db     *gorm.DB
	log    *zap.SugaredLogger
	ledger *ledger.Service
}

func NewService(db *gorm.DB, log *zap.SugaredLogger, led *ledger.Service) *Service {
	return &Service{db: db, log: log, ledger: led}
}

// RecordUsageRequest carries one raw metered sample.
type RecordUsageRequest struct {
	UserID      string
	WorkspaceID string
	Metric      string
	Value       float64
	Period      string
	WindowStart time.Time
	WindowEnd   time.Time
	Extra       map[string]any
	// ConsumeAllowance controls whether the reading also charges the Usage
	// credit pool. The summary keeps the raw fractional value either way.
	ConsumeAllowance bool
}

// RecordUsageResult bundles the persisted reading, the running summary, and
// the consumption outcome when one was requested.
type RecordUsageResult struct {
	Reading     *models.UsageMeterReading
	Summary     *models.UsageSummary
	Consumption *ledger.ConsumptionResult
}

// RecordUsage persists the raw reading, additively upserts the per-(workspace,
// metric, period) summary, and optionally consumes the integer-rounded value
// from the Usage allowance. The fractional value survives in the summary for
// billing accuracy; only consumption rounds.
func (s *Service) RecordUsage(ctx context.Context, req *RecordUsageRequest) (*RecordUsageResult, error) {
	reading := &models.UsageMeterReading{
		ID:          tool.GenerateUUIDV7(),
		UserID:      req.UserID,
		WorkspaceID: req.WorkspaceID,
		Metric:      req.Metric,
		Value:       req.Value,
		Period:      req.Period,
		WindowStart: req.WindowStart,
		WindowEnd:   req.WindowEnd,
		Extra:       datatypes.JSONMap(req.Extra),
	}
	if reading.Extra == nil {
		reading.Extra = datatypes.JSONMap{}
	}

	var summary *models.UsageSummary
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(reading).Error; err != nil {
			return fmt.Errorf("failed to persist usage reading: %w", err)
		}
		var err error
		summary, err = upsertSummary(tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &RecordUsageResult{Reading: reading, Summary: summary}

	if req.ConsumeAllowance {
		amount := roundCreditAmount(req.Value)
		if amount > 0 {
			consumption, err := s.ledger.Consume(ctx, &ledger.ConsumeRequest{
				UserID: req.UserID,
				Type:   types.CreditTypeUsage,
				Amount: amount,
				Action: fmt.Sprintf("usage:%s", req.Metric),
				Extra: map[string]any{
					"workspace_id": req.WorkspaceID,
					"period":       req.Period,
					"raw_value":    req.Value,
				},
				AllowPayg: true,
			})
			if err != nil {
				return nil, err
			}
			result.Consumption = consumption
		}
	}

	logctx.FromCtx(ctx, s.log).Debugw("usage recorded",
		"workspace_id", req.WorkspaceID, "metric", req.Metric, "value", req.Value,
		"consumed", result.Consumption != nil)
	return result, nil
}

// roundCreditAmount maps a raw metered value to whole credit units: nearest
// integer, floored at zero.
func roundCreditAmount(value float64) int {
	rounded := int(math.Round(value))
	if rounded < 0 {
		return 0
	}
	return rounded
}

func upsertSummary(tx *gorm.DB, req *RecordUsageRequest) (*models.UsageSummary, error) {
	var summary models.UsageSummary
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("workspace_id = ? AND metric = ? AND period = ?", req.WorkspaceID, req.Metric, req.Period).
		First(&summary).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load usage summary: %w", err)
		}
		summary = models.UsageSummary{
			ID:          tool.GenerateUUIDV7(),
			UserID:      req.UserID,
			WorkspaceID: req.WorkspaceID,
			Metric:      req.Metric,
			Period:      req.Period,
			Value:       req.Value,
			Currency:    "usd",
		}
		if err := tx.Create(&summary).Error; err != nil {
			return nil, fmt.Errorf("failed to create usage summary: %w", err)
		}
		return &summary, nil
	}

	summary.Value += req.Value
	if err := tx.Save(&summary).Error; err != nil {
		return nil, fmt.Errorf("failed to update usage summary: %w", err)
	}
	return &summary, nil
}

// ListUsage returns a user's usage summaries, optionally narrowed by
// workspace and metric, newest first.
func (s *Service) ListUsage(ctx context.Context, userID, workspaceID, metric string) ([]*models.UsageSummary, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc")
	if workspaceID != "" {
		q = q.Where("workspace_id = ?", workspaceID)
	}
	if metric != "" {
		q = q.Where("metric = ?", metric)
	}
	var summaries []*models.UsageSummary
	if err := q.Find(&summaries).Error; err != nil {
		return nil, fmt.Errorf("failed to list usage summaries: %w", err)
	}
	return summaries, nil
}
