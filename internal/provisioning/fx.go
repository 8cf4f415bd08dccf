package provisioning

import (
	"github.com/webafza/billing/internal/provisioning/service"
	"go.uber.org/fx"
)

var Module = fx.Module("provisioning.service",
	fx.Provide(service.NewReader),
)
