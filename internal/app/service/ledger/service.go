package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

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

// Service owns allowances, rollover buckets, consumption events, auto-fix
// counters, overage charges, and budget guards. All mutating operations run
// inside a single database transaction with row-level locks on the pools
// being touched.
type Service struct {
	db  *gorm.DB
	cfg *config.Config
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, cfg *config.Config, log *zap.SugaredLogger) *Service {
	return &Service{db: db, cfg: cfg, log: log}
}

// GrantAllowanceRequest describes a new allowance row.
type GrantAllowanceRequest struct {
	UserID         string
	PlanID         *string
	Type           types.CreditType
	Total          int
	Window         types.AllowanceWindow
	RolloverPolicy types.RolloverPolicy
	ExpiresAt      *time.Time
	Source         string
	Extra          map[string]any
}

// GrantAllowance creates a new allowance. Fails with ErrInvalidAmount when
// total is not positive.
func (s *Service) GrantAllowance(ctx context.Context, req *GrantAllowanceRequest) (*models.Allowance, error) {
	if req.Total <= 0 {
		return nil, fmt.Errorf("grant allowance for user %s: %w", req.UserID, ErrInvalidAmount)
	}
	window := req.Window
	if window == "" {
		window = types.AllowanceWindowMonthly
	}
	policy := req.RolloverPolicy
	if policy == "" {
		policy = types.RolloverPolicyNone
	}
	allowance := &models.Allowance{
		ID:             tool.GenerateUUIDV7(),
		UserID:         req.UserID,
		PlanID:         req.PlanID,
		Type:           req.Type,
		Total:          req.Total,
		Used:           0,
		Window:         window,
		RolloverPolicy: policy,
		ExpiresAt:      req.ExpiresAt,
		Source:         req.Source,
		Extra:          datatypes.JSONMap(req.Extra),
	}
	if allowance.Extra == nil {
		allowance.Extra = datatypes.JSONMap{}
	}
	if err := s.db.WithContext(ctx).Create(allowance).Error; err != nil {
		return nil, fmt.Errorf("failed to create allowance: %w", err)
	}
	return allowance, nil
}

// RevokeAllowance expires an allowance immediately and appends an audit note.
// History is preserved; nothing is deleted.
func (s *Service) RevokeAllowance(ctx context.Context, allowanceID string, reason string) (*models.Allowance, error) {
	var allowance *models.Allowance
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.Allowance
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", allowanceID).First(&row).Error; err != nil {
			return fmt.Errorf("failed to load allowance %s: %w", allowanceID, err)
		}
		now := time.Now()
		row.ExpiresAt = &now
		if row.Extra == nil {
			row.Extra = datatypes.JSONMap{}
		}
		revocations, _ := row.Extra["revocations"].([]any)
		row.Extra["revocations"] = append(revocations, map[string]any{
			"at":     now.UTC().Format(time.RFC3339),
			"reason": reason,
		})
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("failed to revoke allowance %s: %w", allowanceID, err)
		}
		allowance = &row
		return nil
	})
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("allowance revoked", "allowance_id", allowanceID, "reason", reason)
	return allowance, nil
}

// AvailableBalance sums non-expired allowance remainders plus live rollover
// buckets for (user, credit type). Read-only; no side effects.
func (s *Service) AvailableBalance(ctx context.Context, userID string, creditType types.CreditType) (int, error) {
	available, _, err := s.WouldConsume(ctx, userID, creditType, 1)
	return available, err
}

// WouldConsume is the read-only pre-flight check: returns the total available
// balance and the rollover share of it without mutating any row.
func (s *Service) WouldConsume(ctx context.Context, userID string, creditType types.CreditType, amount int) (available int, rollover int, err error) {
	if amount <= 0 {
		return 0, 0, fmt.Errorf("would consume for user %s: %w", userID, ErrInvalidAmount)
	}
	now := time.Now()
	tx := s.db.WithContext(ctx)

	allowances, err := loadAllowances(tx, userID, creditType, now, false)
	if err != nil {
		return 0, 0, err
	}
	buckets, err := loadRolloverBuckets(tx, userID, creditType, now, false)
	if err != nil {
		return 0, 0, err
	}
	for _, a := range allowances {
		available += a.Remaining()
	}
	for _, b := range buckets {
		rollover += b.Remain
	}
	return available + rollover, rollover, nil
}

// UpsertPlanAllowance seeds or renews the (user, plan, type) allowance. On
// renewal, the unconsumed remainder is converted into a rollover bucket per
// policy before quotas reset. Must run inside the caller's transaction.
func (s *Service) UpsertPlanAllowance(ctx context.Context, tx *gorm.DB, req *GrantAllowanceRequest) (*models.Allowance, error) {
	if req.Total <= 0 {
		return nil, fmt.Errorf("upsert plan allowance for user %s: %w", req.UserID, ErrInvalidAmount)
	}

	var existing models.Allowance
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND plan_id = ? AND type = ?", req.UserID, req.PlanID, req.Type).
		First(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load plan allowance: %w", err)
		}
		allowance := &models.Allowance{
			ID:             tool.GenerateUUIDV7(),
			UserID:         req.UserID,
			PlanID:         req.PlanID,
			Type:           req.Type,
			Total:          req.Total,
			Window:         types.AllowanceWindowMonthly,
			RolloverPolicy: req.RolloverPolicy,
			ExpiresAt:      req.ExpiresAt,
			Source:         req.Source,
			Extra:          datatypes.JSONMap(req.Extra),
		}
		if allowance.Extra == nil {
			allowance.Extra = datatypes.JSONMap{}
		}
		if err := tx.WithContext(ctx).Create(allowance).Error; err != nil {
			return nil, fmt.Errorf("failed to seed plan allowance: %w", err)
		}
		return allowance, nil
	}

	if bucket := rolloverBucketFor(&existing, req.ExpiresAt, req.RolloverPolicy); bucket != nil {
		if err := tx.WithContext(ctx).Create(bucket).Error; err != nil {
			return nil, fmt.Errorf("failed to create rollover bucket: %w", err)
		}
		logctx.FromCtx(ctx, s.log).Infow("rollover bucket created",
			"user_id", req.UserID, "allowance_id", existing.ID, "remain", bucket.Remain)
	}

	existing.Total = req.Total
	existing.Used = 0
	existing.RolloverPolicy = req.RolloverPolicy
	existing.ExpiresAt = req.ExpiresAt
	if existing.Extra == nil {
		existing.Extra = datatypes.JSONMap{}
	}
	for k, v := range req.Extra {
		existing.Extra[k] = v
	}
	if err := tx.WithContext(ctx).Save(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to renew plan allowance: %w", err)
	}
	return &existing, nil
}

// rolloverBucketFor converts an allowance's unconsumed remainder into a new
// bucket. Returns nil when policy forbids rollover or nothing remains.
func rolloverBucketFor(prior *models.Allowance, newPeriodEnd *time.Time, policy types.RolloverPolicy) *models.RolloverBucket {
	if policy == types.RolloverPolicyNone || policy == "" {
		return nil
	}
	remaining := prior.Remaining()
	if remaining <= 0 {
		return nil
	}
	expiry := rolloverExpiry(newPeriodEnd, policy)
	return &models.RolloverBucket{
		ID:          tool.GenerateUUIDV7(),
		UserID:      prior.UserID,
		AllowanceID: prior.ID,
		Remain:      remaining,
		ExpiresAt:   expiry,
	}
}

// rolloverExpiry keeps buckets shorter-lived than the parent's next cycle:
// one cycle adds 30 days from the new period end, annual adds 365.
func rolloverExpiry(periodEnd *time.Time, policy types.RolloverPolicy) *time.Time {
	if periodEnd == nil {
		return nil
	}
	var expiry time.Time
	switch policy {
	case types.RolloverPolicyOneCycle:
		expiry = periodEnd.Add(30 * 24 * time.Hour)
	case types.RolloverPolicyAnnual:
		expiry = periodEnd.Add(365 * 24 * time.Hour)
	default:
		expiry = *periodEnd
	}
	return &expiry
}

// primarySubscription loads the user's live primary subscription and its plan
// inside tx, or (nil, nil, nil) when the user has none.
func (s *Service) primarySubscription(ctx context.Context, tx *gorm.DB, userID string) (*models.UserSubscription, *models.Plan, error) {
	var sub models.UserSubscription
	err := tx.WithContext(ctx).
		Where("user_id = ? AND is_primary = ? AND status IN ?", userID, true,
			[]types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusTrialing}).
		Order("created_at desc").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to load primary subscription: %w", err)
	}
	var plan models.Plan
	if err := tx.WithContext(ctx).Where("id = ?", sub.PlanID).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &sub, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to load plan %s: %w", sub.PlanID, err)
	}
	return &sub, &plan, nil
}

// loadAllowances fetches non-expired allowances for (user, type), optionally
// locking them for update. Ordering happens in Go via the drain comparator.
func loadAllowances(tx *gorm.DB, userID string, creditType types.CreditType, now time.Time, lock bool) ([]*models.Allowance, error) {
	q := tx.Model(&models.Allowance{}).
		Where("user_id = ? AND type = ?", userID, creditType).
		Where("expires_at IS NULL OR expires_at > ?", now)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rows []*models.Allowance
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load allowances: %w", err)
	}
	return rows, nil
}

// loadRolloverBuckets fetches live buckets whose parent allowance matches
// (user, type). The parent's own expiry is irrelevant; buckets age on their
// own clock.
func loadRolloverBuckets(tx *gorm.DB, userID string, creditType types.CreditType, now time.Time, lock bool) ([]*models.RolloverBucket, error) {
	sub := tx.Session(&gorm.Session{NewDB: true}).
		Model(&models.Allowance{}).Select("id").
		Where("user_id = ? AND type = ?", userID, creditType)
	q := tx.Model(&models.RolloverBucket{}).
		Where("user_id = ? AND allowance_id IN (?)", userID, sub).
		Where("remain > 0").
		Where("expires_at IS NULL OR expires_at > ?", now)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: models.RolloverBucket{}.TableName()}})
	}
	var rows []*models.RolloverBucket
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load rollover buckets: %w", err)
	}
	return rows, nil
}
