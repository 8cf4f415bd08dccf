package client

import (
	"github.com/webafza/billing/internal/client/service"
	"go.uber.org/fx"
)

var Module = fx.Module("client.service",
	fx.Provide(service.NewService),
)
