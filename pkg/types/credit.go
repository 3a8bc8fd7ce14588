package types

// CreditType is one of the ledger's independent prepaid currencies.
type CreditType string

const (
	// CreditTypeBC are build credits, spent on project builds and fixes.
	CreditTypeBC CreditType = "BC"
	// CreditTypeRC are request credits, spent on API-style requests.
	CreditTypeRC CreditType = "RC"
	// CreditTypeUsage covers metered infrastructure usage (e.g. bandwidth).
	CreditTypeUsage CreditType = "Usage"
)

func (t CreditType) Valid() bool {
	switch t {
	case CreditTypeBC, CreditTypeRC, CreditTypeUsage:
		return true
	}
	return false
}

// AllowanceWindow is the cadence an allowance is scoped to.
type AllowanceWindow string

const (
	AllowanceWindowDaily   AllowanceWindow = "daily"
	AllowanceWindowMonthly AllowanceWindow = "monthly"
	AllowanceWindowYearly  AllowanceWindow = "yearly"
)

// RolloverPolicy controls what happens to unconsumed allowance at cycle renewal.
type RolloverPolicy string

const (
	RolloverPolicyNone     RolloverPolicy = "none"
	RolloverPolicyOneCycle RolloverPolicy = "1_cycle"
	RolloverPolicyAnnual   RolloverPolicy = "annual"
)

type PlanSharedMode string

const (
	PlanSharedModeSharedPool PlanSharedMode = "shared_pool"
	PlanSharedModeHybrid     PlanSharedMode = "hybrid"
)

type SubscriptionStatus string

const (
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// OverageChargeStatus moves strictly forward:
// pending -> invoiced -> paid, with waived as a terminal branch.
type OverageChargeStatus string

const (
	OverageChargeStatusPending  OverageChargeStatus = "pending"
	OverageChargeStatusInvoiced OverageChargeStatus = "invoiced"
	OverageChargeStatusPaid     OverageChargeStatus = "paid"
	OverageChargeStatusWaived   OverageChargeStatus = "waived"
)

// CanTransitionTo reports whether a forward transition to next is allowed.
func (s OverageChargeStatus) CanTransitionTo(next OverageChargeStatus) bool {
	switch s {
	case OverageChargeStatusPending:
		return next == OverageChargeStatusInvoiced || next == OverageChargeStatusWaived
	case OverageChargeStatusInvoiced:
		return next == OverageChargeStatusPaid || next == OverageChargeStatusWaived
	}
	return false
}

// CreditTransactionType classifies entries in the per-user credit journal.
type CreditTransactionType string

const (
	CreditTransactionTypeRecharge   CreditTransactionType = "recharge"
	CreditTransactionTypeUsage      CreditTransactionType = "usage"
	CreditTransactionTypeAdjustment CreditTransactionType = "adjustment"
	CreditTransactionTypeRefund     CreditTransactionType = "refund"
)

type BudgetGuardBehavior string

const (
	BudgetGuardBehaviorSuspend  BudgetGuardBehavior = "suspend"
	BudgetGuardBehaviorThrottle BudgetGuardBehavior = "throttle"
)
