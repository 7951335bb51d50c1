package processing

import (
	"go.uber.org/fx"
)

// Module provides the processing demo endpoints
var Module = fx.Module("processing",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
