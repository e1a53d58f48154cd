package template

import (
	"github.com/facturasv/dte-engine/internal/template/service"
	"go.uber.org/fx"
)

var Module = fx.Module("template.service",
	fx.Provide(service.NewService),
)
