package routeguard

import "go.uber.org/fx"

var Module = fx.Module("routeguard",
	fx.Provide(New),
)
