package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/facturasv/dte-engine/internal/authority"
	"github.com/facturasv/dte-engine/internal/clock"
	"github.com/facturasv/dte-engine/internal/config"
	"github.com/facturasv/dte-engine/internal/counterparty"
	"github.com/facturasv/dte-engine/internal/document"
	"github.com/facturasv/dte-engine/internal/logger"
	"github.com/facturasv/dte-engine/internal/migration"
	"github.com/facturasv/dte-engine/internal/notification"
	"github.com/facturasv/dte-engine/internal/observability/tracing"
	"github.com/facturasv/dte-engine/internal/scheduler"
	"github.com/facturasv/dte-engine/internal/seed"
	"github.com/facturasv/dte-engine/internal/server"
	"github.com/facturasv/dte-engine/internal/template"
	"github.com/facturasv/dte-engine/internal/tenant"
	"github.com/facturasv/dte-engine/pkg/db"
)

var version = "dev"

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(1)
			if err != nil {
				panic(err)
			}
			return node
		}),
		clock.Module,
		tracing.Module,
		db.Module,
		fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node, log *zap.Logger) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := migration.RunMigrations(sqlDB); err != nil {
				return err
			}
			if cfg.Bootstrap.SeedDemoTenant {
				if err := seed.EnsureDemoTenant(conn, node); err != nil {
					return err
				}
				log.Info("demo tenant ready")
			}
			return nil
		}),
		tenant.Module,
		counterparty.Module,
		authority.Module,
		notification.Module,
		document.Module,
		template.Module,
		scheduler.Module,
		server.Module,
	)
	app.Run()
}
