package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	models "github.com/fatflowers/allowance/internal/models"
	"github.com/fatflowers/allowance/pkg/logctx"
	"github.com/fatflowers/allowance/pkg/tool"
	types "github.com/fatflowers/allowance/pkg/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ConsumeRequest asks the engine to spend Amount units of a credit type.
// ActionHash, when set, is the caller's idempotency key: replaying it returns
// the original event with no further deduction.
type ConsumeRequest struct {
	UserID          string
	Type            types.CreditType
	Amount          int
	Action          string
	ActionHash      string
	ComplexityScore int
	Extra           map[string]any
	// AllowPayg lets the caller veto overage creation for this call even if
	// the subscription permits it.
	AllowPayg bool
}

// ConsumptionResult reports what a consume call did.
type ConsumptionResult struct {
	Event *models.ConsumptionEvent
	// Deducted is the amount drained from rollover buckets and allowances;
	// the rest (if any) was covered by auto-fix or a PAYG charge.
	Deducted     int
	PaygCharge   *models.OverageCharge
	AutofixGrant *models.AllowanceDailyAutofix
	// Replayed marks an idempotent hit: Event is the original row.
	Replayed bool
}

// Consume drains rollover buckets first, then current-cycle allowances, then
// falls back to the free-tier auto-fix grant or a PAYG overage charge.
//
// Partial deductions are deliberately kept when the final remainder cannot be
// covered: credit that was available has been legitimately spent, and only
// the gap is rejected. The drains therefore commit even on a terminal
// exhaustion error.
func (s *Service) Consume(ctx context.Context, req *ConsumeRequest) (*ConsumptionResult, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("consume %s for user %s: %w", req.Type, req.UserID, ErrInvalidAmount)
	}

	result := &ConsumptionResult{}
	var termErr error

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		// Idempotency lookup happens inside the transaction; the unique
		// index on action_hash is the backstop for concurrent retries.
		if req.ActionHash != "" {
			existing, err := findEventByHash(tx, req.ActionHash)
			if err != nil {
				return err
			}
			if existing != nil {
				*result = *replayedResult(existing)
				return nil
			}
		}

		buckets, err := loadRolloverBuckets(tx, req.UserID, req.Type, now, true)
		if err != nil {
			return err
		}
		allowances, err := loadAllowances(tx, req.UserID, req.Type, now, true)
		if err != nil {
			return err
		}

		outcome := drainPools(buckets, allowances, req.Amount)
		for _, bucket := range outcome.touchedBuckets {
			if err := tx.Model(bucket).Update("remain", bucket.Remain).Error; err != nil {
				return fmt.Errorf("failed to update rollover bucket %s: %w", bucket.ID, err)
			}
		}
		for _, allowance := range outcome.touchedAllowances {
			if err := tx.Model(allowance).Update("used", allowance.Used).Error; err != nil {
				return fmt.Errorf("failed to update allowance %s: %w", allowance.ID, err)
			}
		}
		result.Deducted = outcome.deducted

		if outcome.remaining > 0 {
			sub, plan, err := s.primarySubscription(ctx, tx, req.UserID)
			if err != nil {
				return err
			}
			switch decision := resolveFallback(sub, plan, outcome.remaining, req.AllowPayg); decision.kind {
			case fallbackAutofix:
				// The free-tier grant forgives the whole remainder, however
				// large. That mirrors the billing rules this ledger ships
				// with; see the catalog docs before changing it.
				grant, err := s.applyAutofix(ctx, tx, req.UserID, now)
				if err != nil {
					if errors.Is(err, ErrAutoFixLimitExceeded) {
						termErr = err
						return nil
					}
					return err
				}
				result.AutofixGrant = grant
			case fallbackOverage:
				charge, err := s.createOverageCharge(ctx, tx, req.UserID, req.Type, decision.overageAmount, req.Action)
				if err != nil {
					return err
				}
				result.PaygCharge = charge
			case fallbackPaygConfirm:
				termErr = fmt.Errorf("consume %s for user %s needs %d overage: %w",
					req.Type, req.UserID, outcome.remaining, ErrPaygChargeRequired)
				return nil
			default:
				termErr = fmt.Errorf("consume %s for user %s short by %d: %w",
					req.Type, req.UserID, outcome.remaining, ErrAllowanceExhausted)
				return nil
			}
		}

		event := buildEvent(req, outcome, result, now)
		if err := tx.Create(event).Error; err != nil {
			return fmt.Errorf("failed to create consumption event: %w", err)
		}
		result.Event = event
		return nil
	})

	if err != nil {
		// A concurrent retry with the same hash may have won the insert
		// race; hand back its event instead of the conflict.
		if errors.Is(err, gorm.ErrDuplicatedKey) && req.ActionHash != "" {
			existing, ferr := findEventByHash(s.db.WithContext(ctx), req.ActionHash)
			if ferr == nil && existing != nil {
				return replayedResult(existing), nil
			}
		}
		return nil, err
	}
	if termErr != nil {
		logctx.FromCtx(ctx, s.log).Infow("consumption rejected",
			"user_id", req.UserID, "type", req.Type, "amount", req.Amount,
			"deducted", result.Deducted, "err", termErr)
		return nil, termErr
	}

	logctx.FromCtx(ctx, s.log).Infow("consumption applied",
		"user_id", req.UserID, "type", req.Type, "amount", req.Amount,
		"deducted", result.Deducted, "replayed", result.Replayed,
		"autofix", result.AutofixGrant != nil, "payg", result.PaygCharge != nil)
	return result, nil
}

// fallbackKind is how an unmet remainder gets covered (or not).
type fallbackKind int

const (
	fallbackNone fallbackKind = iota
	fallbackAutofix
	fallbackOverage
	fallbackPaygConfirm
	fallbackExhausted
)

type fallbackDecision struct {
	kind fallbackKind
	// overageAmount is the exact gap billed as PAYG, set only for fallbackOverage.
	overageAmount int
}

// resolveFallback decides what happens to the remainder the drains could not
// cover: free-tier subscriptions take an auto-fix waiver, PAYG subscriptions
// get an overage charge when the caller allows it and a confirmation error
// when they do not, everything else is exhausted.
func resolveFallback(sub *models.UserSubscription, plan *models.Plan, remaining int, allowPayg bool) fallbackDecision {
	if remaining <= 0 {
		return fallbackDecision{kind: fallbackNone}
	}
	switch {
	case sub != nil && plan.IsFree():
		return fallbackDecision{kind: fallbackAutofix}
	case sub != nil && sub.PaygEnabled && allowPayg:
		return fallbackDecision{kind: fallbackOverage, overageAmount: remaining}
	case sub != nil && sub.PaygEnabled:
		return fallbackDecision{kind: fallbackPaygConfirm}
	default:
		return fallbackDecision{kind: fallbackExhausted}
	}
}

// replayedResult wraps an already-recorded event: the original deduction is
// reported as-is and no pool is touched again.
func replayedResult(event *models.ConsumptionEvent) *ConsumptionResult {
	return &ConsumptionResult{Event: event, Deducted: event.Deducted, Replayed: true}
}

func findEventByHash(tx *gorm.DB, hash string) (*models.ConsumptionEvent, error) {
	var event models.ConsumptionEvent
	err := tx.Where("action_hash = ?", hash).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up consumption event: %w", err)
	}
	return &event, nil
}

func buildEvent(req *ConsumeRequest, outcome drainOutcome, result *ConsumptionResult, now time.Time) *models.ConsumptionEvent {
	hash := req.ActionHash
	if hash == "" {
		hash = fmt.Sprintf("%s:%s:%s", req.UserID, req.Action, now.UTC().Format(time.RFC3339Nano))
	}
	extra := datatypes.JSONMap{}
	for k, v := range req.Extra {
		extra[k] = v
	}
	extra["credit_type"] = string(req.Type)
	extra["autofix_applied"] = result.AutofixGrant != nil
	if result.PaygCharge != nil {
		extra["payg_charge_id"] = result.PaygCharge.ID
	}
	event := &models.ConsumptionEvent{
		ID:              tool.GenerateUUIDV7(),
		UserID:          req.UserID,
		Action:          req.Action,
		Amount:          req.Amount,
		Deducted:        outcome.deducted,
		ComplexityScore: req.ComplexityScore,
		ActionHash:      hash,
		Extra:           extra,
	}
	if outcome.lastAllowance != nil {
		event.AllowanceID = &outcome.lastAllowance.ID
	}
	return event
}

type drainOutcome struct {
	deducted          int
	remaining         int
	lastAllowance     *models.Allowance
	touchedBuckets    []*models.RolloverBucket
	touchedAllowances []*models.Allowance
}

// drainPools deducts up to amount, rollover buckets strictly before
// current-cycle allowances, each pool ordered soonest-expiring-first. It
// mutates the passed rows in place and reports which ones changed.
func drainPools(buckets []*models.RolloverBucket, allowances []*models.Allowance, amount int) drainOutcome {
	outcome := drainOutcome{remaining: amount}

	sort.SliceStable(buckets, func(i, j int) bool {
		return drainBefore(buckets[i].ExpiresAt, buckets[i].CreatedAt, buckets[j].ExpiresAt, buckets[j].CreatedAt)
	})
	for _, bucket := range buckets {
		if outcome.remaining <= 0 {
			break
		}
		if bucket.Remain <= 0 {
			continue
		}
		deduct := min(bucket.Remain, outcome.remaining)
		bucket.Remain -= deduct
		outcome.remaining -= deduct
		outcome.deducted += deduct
		outcome.touchedBuckets = append(outcome.touchedBuckets, bucket)
	}

	sort.SliceStable(allowances, func(i, j int) bool {
		return drainBefore(allowances[i].ExpiresAt, allowances[i].CreatedAt, allowances[j].ExpiresAt, allowances[j].CreatedAt)
	})
	for _, allowance := range allowances {
		if outcome.remaining <= 0 {
			break
		}
		available := allowance.Remaining()
		if available <= 0 {
			continue
		}
		deduct := min(available, outcome.remaining)
		allowance.Used += deduct
		outcome.remaining -= deduct
		outcome.deducted += deduct
		outcome.lastAllowance = allowance
		outcome.touchedAllowances = append(outcome.touchedAllowances, allowance)
	}

	return outcome
}

// drainBefore is the deterministic drain ordering: expiry ascending with nil
// treated as infinitely far out, then creation time ascending. Draining the
// soonest-expiring pool first minimizes credit lost to expiry.
func drainBefore(iExpiry *time.Time, iCreated time.Time, jExpiry *time.Time, jCreated time.Time) bool {
	switch {
	case iExpiry == nil && jExpiry != nil:
		return false
	case iExpiry != nil && jExpiry == nil:
		return true
	case iExpiry != nil && jExpiry != nil && !iExpiry.Equal(*jExpiry):
		return iExpiry.Before(*jExpiry)
	}
	return iCreated.Before(jCreated)
}
