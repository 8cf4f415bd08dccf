package audit

import (
	"github.com/webafza/billing/internal/audit/repository"
	"github.com/webafza/billing/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
