package usage

import "go.uber.org/fx"

// Module exposes the usage aggregator via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
)
