package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrTenantNotFound = errors.New("tenant_not_found")

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tenant, error)
	FindByNIT(ctx context.Context, db *gorm.DB, nit string) (*Tenant, error)
	Insert(ctx context.Context, db *gorm.DB, tenant *Tenant) error

	FindToken(ctx context.Context, db *gorm.DB, identity, environment string) (*AuthorityToken, error)
	SaveToken(ctx context.Context, db *gorm.DB, token *AuthorityToken) error
}
