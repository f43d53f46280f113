package bootstrap

import (
	"context"
	"fmt"

	"pixelswap/pkg/config"
	"pixelswap/services/event"
	"pixelswap/services/experiment"
	"pixelswap/services/stats"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	config *config.Config
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		config: p.Config,
	}
}

// Models lists every table owned by the service, parents first.
func Models() []any {
	models := experiment.Models()
	return append(models, &event.InteractionEvent{}, &stats.DailyStatistic{})
}

func (s *Service) Migrate(ctx context.Context) error {
	models := Models()
	if err := s.db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	zap.L().Info("[bootstrap] schema migrated",
		zap.String("dialect", s.db.Dialector.Name()),
		zap.Int("tables", len(models)),
	)
	return nil
}
