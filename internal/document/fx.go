package document

import (
	"go.uber.org/fx"

	"github.com/facturasv/dte-engine/internal/document/mode"
	"github.com/facturasv/dte-engine/internal/document/service"
)

var Module = fx.Module("document.service",
	fx.Provide(mode.NewLiveMode),
	fx.Provide(mode.NewDemoMode),
	fx.Provide(mode.NewResolver),
	fx.Provide(service.NewService),
)
