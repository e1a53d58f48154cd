// Package seed bootstraps the demo issuing tenant so a fresh install can
// exercise the full document lifecycle without authority credentials.
package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	tenantdomain "github.com/facturasv/dte-engine/internal/tenant/domain"
)

const (
	demoTenantName = "Empresa Demo S.A. de C.V."
	demoTenantNIT  = "0614-000000-000-0"
	demoTenantNRC  = "000000-0"
	demoAPIUser    = "demo"
	demoActivity   = "62010"
)

// EnsureDemoTenant seeds the demo tenant for startup bootstrap. Idempotent:
// an existing tenant with the demo NIT is left untouched.
func EnsureDemoTenant(db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing tenantdomain.Tenant
		err := tx.WithContext(ctx).Where("nit = ?", demoTenantNIT).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		tenant := tenantdomain.Tenant{
			ID:               node.Generate(),
			Name:             demoTenantName,
			NIT:              demoTenantNIT,
			NRC:              demoTenantNRC,
			Environment:      tenantdomain.EnvironmentTest,
			Demo:             true,
			APIUser:          demoAPIUser,
			APIPassword:      "demo",
			EconomicActivity: demoActivity,
		}
		return tx.WithContext(ctx).Create(&tenant).Error
	})
}
