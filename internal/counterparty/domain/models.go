// Package domain contains the counterparty (document receiver) records.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Counterparty is the client a document is issued to.
type Counterparty struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	TenantID       snowflake.ID `gorm:"not null;uniqueIndex:idx_counterparties_doc,priority:1"`
	Name           string       `gorm:"type:text;not null"`
	DocumentType   string       `gorm:"type:text"`
	DocumentNumber string       `gorm:"type:text;not null;uniqueIndex:idx_counterparties_doc,priority:2"`
	Email          *string      `gorm:"type:text"`
	Phone          *string      `gorm:"type:text"`
	Address        *string      `gorm:"type:text"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Counterparty) TableName() string { return "counterparties" }

var (
	ErrCounterpartyNotFound = errors.New("counterparty_not_found")
	ErrDuplicateDocument    = errors.New("duplicate_document_number")
)
