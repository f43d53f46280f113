package event

import (
	"pixelswap/pkg/httpapi"
	"pixelswap/services/experiment"

	"go.uber.org/fx"
)

var Module = fx.Module("event.service",
	fx.Provide(
		func(r experiment.Repository) ExperimentLookup { return r },
		NewService,
		httpapi.AsRoute(NewHandler),
	),
)
