package ledger

import "go.uber.org/fx"

// Module exposes the allowance ledger via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
)
