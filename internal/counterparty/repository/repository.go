package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/facturasv/dte-engine/internal/counterparty/domain"
)

type gormRepository struct{}

// Provide constructs the gorm-backed counterparty repository.
func Provide() domain.Repository {
	return &gormRepository{}
}

func (r *gormRepository) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Counterparty, error) {
	return r.findOne(ctx, db, "tenant_id = ? AND id = ?", tenantID, id)
}

func (r *gormRepository) FindByDocumentNumber(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, documentNumber string) (*domain.Counterparty, error) {
	return r.findOne(ctx, db, "tenant_id = ? AND document_number = ?", tenantID, documentNumber)
}

func (r *gormRepository) FindByName(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, name string) (*domain.Counterparty, error) {
	return r.findOne(ctx, db, "tenant_id = ? AND name = ?", tenantID, name)
}

func (r *gormRepository) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Counterparty, error) {
	var cp domain.Counterparty
	err := db.WithContext(ctx).First(&cp, append([]any{query}, args...)...).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cp, nil
}

func (r *gormRepository) Insert(ctx context.Context, db *gorm.DB, cp *domain.Counterparty) error {
	err := db.WithContext(ctx).Create(cp).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrDuplicateDocument
	}
	return err
}

func (r *gormRepository) UpdateContact(ctx context.Context, db *gorm.DB, cp *domain.Counterparty) error {
	return db.WithContext(ctx).
		Model(&domain.Counterparty{}).
		Where("tenant_id = ? AND id = ?", cp.TenantID, cp.ID).
		Updates(map[string]any{
			"name":       cp.Name,
			"email":      cp.Email,
			"phone":      cp.Phone,
			"updated_at": time.Now().UTC(),
		}).Error
}
