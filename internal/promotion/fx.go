package promotion

import (
	"github.com/webafza/billing/internal/promotion/service"
	"go.uber.org/fx"
)

var Module = fx.Module("promotion.service",
	fx.Provide(service.NewService),
)
