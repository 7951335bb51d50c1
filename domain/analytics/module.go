package analytics

import (
	"go.uber.org/fx"
)

// Module provides the analytics demo endpoint
var Module = fx.Module("analytics",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
