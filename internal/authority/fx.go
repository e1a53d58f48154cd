package authority

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/facturasv/dte-engine/internal/clock"
	"github.com/facturasv/dte-engine/internal/config"
	tenantdomain "github.com/facturasv/dte-engine/internal/tenant/domain"
)

var Module = fx.Module("authority",
	fx.Provide(func(cfg config.Config, log *zap.Logger) Authenticator {
		return NewHTTPAuthenticator(cfg, log)
	}),
	fx.Provide(func(cfg config.Config, log *zap.Logger) Transmitter {
		return NewHTTPTransmitter(cfg, log)
	}),
	fx.Provide(func(cfg config.Config, log *zap.Logger) Signer {
		return NewHTTPSigner(cfg, log)
	}),
	fx.Provide(func(
		db *gorm.DB,
		log *zap.Logger,
		clk clock.Clock,
		genID *snowflake.Node,
		tenants tenantdomain.Repository,
		auth Authenticator,
		cfg config.Config,
	) *TokenCache {
		return NewTokenCache(db, log, clk, genID, tenants, auth, cfg.Authority.TokenTTL)
	}),
)
