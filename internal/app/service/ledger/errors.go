package ledger

import "errors"

var (
	// ErrInvalidAmount rejects non-positive quantities before any mutation.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrAllowanceExhausted means no covering pool exists and neither
	// auto-fix nor PAYG can absorb the remainder.
	ErrAllowanceExhausted = errors.New("insufficient credit allowance")

	// ErrAutoFixLimitExceeded means the free-tier daily auto-fix cap is
	// already reached; surfaced distinctly so UIs can prompt an upgrade.
	ErrAutoFixLimitExceeded = errors.New("daily auto-fix limit reached")

	// ErrPaygChargeRequired is returned when the subscription permits PAYG
	// overage but the caller disallowed it; retry with AllowPayg once the
	// user has confirmed the charge.
	ErrPaygChargeRequired = errors.New("payg charge confirmation required")
)
