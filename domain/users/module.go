package users

import (
	"go.uber.org/fx"
)

// Module provides the users domain
var Module = fx.Module("users",
	fx.Provide(
		NewStore,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
