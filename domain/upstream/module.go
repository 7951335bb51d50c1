package upstream

import (
	"go.uber.org/fx"
)

// Module provides the parallel outbound request demo
var Module = fx.Module("upstream",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
