package storefront

import (
	"pixelswap/pkg/config"
	"pixelswap/pkg/httpapi"
	"pixelswap/services/experiment"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("storefront.service",
	fx.Provide(
		newCache,
		NewService,
		func(s *Service) experiment.CacheInvalidator { return s },
		httpapi.AsRoute(NewHandler),
	),
)

type cacheParams struct {
	fx.In
	Redis  *redis.Client `optional:"true"`
	Config *config.Config
}

func newCache(p cacheParams) Cache {
	if p.Redis == nil || p.Config.Storefront.CacheTTL <= 0 {
		return nil
	}
	return NewRedisCache(p.Redis, p.Config.Storefront.CacheTTL)
}
