// Package db opens the application database connection.
package db

import (
	"go.uber.org/fx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/facturasv/dte-engine/internal/config"
)

var Module = fx.Module("db",
	fx.Provide(Open),
)

// Open connects to Postgres using the configured DSN.
func Open(cfg config.Config) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
}
