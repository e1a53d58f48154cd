package counterparty

import (
	"github.com/facturasv/dte-engine/internal/counterparty/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("counterparty",
	fx.Provide(repository.Provide),
)
