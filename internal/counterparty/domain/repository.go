package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Counterparty, error)
	FindByDocumentNumber(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, documentNumber string) (*Counterparty, error)
	FindByName(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, name string) (*Counterparty, error)
	Insert(ctx context.Context, db *gorm.DB, cp *Counterparty) error
	UpdateContact(ctx context.Context, db *gorm.DB, cp *Counterparty) error
}
