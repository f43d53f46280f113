package media

import (
	"pixelswap/services/experiment"

	"go.uber.org/fx"
)

var Module = fx.Module("media.service",
	fx.Provide(
		NewService,
		func(repo experiment.Repository) AssetStore { return repo },
	),
)
