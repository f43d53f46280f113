package experiment

import (
	"pixelswap/pkg/httpapi"

	"go.uber.org/fx"
)

var Module = fx.Module("experiment.service",
	fx.Provide(
		NewRepository,
		NewService,
		httpapi.AsRoute(NewHandler),
	),
)
