package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/facturasv/dte-engine/internal/tenant/domain"
)

type gormRepository struct {
	genID *snowflake.Node
}

// Provide constructs the gorm-backed tenant repository.
func Provide(genID *snowflake.Node) domain.Repository {
	return &gormRepository{genID: genID}
}

func (r *gormRepository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := db.WithContext(ctx).First(&tenant, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

func (r *gormRepository) FindByNIT(ctx context.Context, db *gorm.DB, nit string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := db.WithContext(ctx).First(&tenant, "nit = ?", nit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

func (r *gormRepository) Insert(ctx context.Context, db *gorm.DB, tenant *domain.Tenant) error {
	return db.WithContext(ctx).Create(tenant).Error
}

func (r *gormRepository) FindToken(ctx context.Context, db *gorm.DB, identity, environment string) (*domain.AuthorityToken, error) {
	var token domain.AuthorityToken
	err := db.WithContext(ctx).
		First(&token, "identity = ? AND environment = ?", identity, environment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &token, nil
}

func (r *gormRepository) SaveToken(ctx context.Context, db *gorm.DB, token *domain.AuthorityToken) error {
	if token.ID == 0 {
		token.ID = r.genID.Generate()
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO authority_tokens (id, identity, environment, token, obtained_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (identity, environment) DO UPDATE
		 SET token = excluded.token,
		     obtained_at = excluded.obtained_at,
		     expires_at = excluded.expires_at`,
		token.ID,
		token.Identity,
		token.Environment,
		token.Token,
		token.ObtainedAt,
		token.ExpiresAt,
	).Error
}
