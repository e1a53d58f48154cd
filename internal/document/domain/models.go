// Package domain contains the electronic tax document (DTE) records and the
// lifecycle contract over them.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// DocumentState is the lifecycle state of a DTE.
type DocumentState string

const (
	StatePending       DocumentState = "PENDING"
	StateSigned        DocumentState = "SIGNED"
	StateTransmittedOK DocumentState = "TRANSMITTED_OK"
	StateRejected      DocumentState = "REJECTED"
	StateCancelled     DocumentState = "CANCELLED"
)

// Well-known DTE type codes.
const (
	TypeFactura        = "01"
	TypeComprobante    = "03"
	TypeNotaCredito    = "05"
	TypeSujetoExcluido = "14"
)

// Document is a tenant-scoped electronic tax document. GenerationCode and
// ControlNumber are assigned exactly once at creation and never change.
type Document struct {
	ID                   snowflake.ID      `gorm:"primaryKey"`
	TenantID             snowflake.ID      `gorm:"not null;index"`
	DocumentType         string            `gorm:"type:text;not null;index:idx_documents_tenant_type"`
	GenerationCode       string            `gorm:"type:text;not null;uniqueIndex"`
	ControlNumber        string            `gorm:"type:text;not null"`
	OriginalPayload      datatypes.JSONMap `gorm:"type:jsonb;not null"`
	SignedPayload        *string           `gorm:"type:text"`
	State                DocumentState     `gorm:"type:text;not null;default:'PENDING'"`
	ReceptionSeal        *string           `gorm:"type:text"`
	ProcessedAt          *time.Time        `gorm:""`
	AuthorityMessage     *string           `gorm:"type:text"`
	TransmissionAttempts int               `gorm:"not null;default:0"`
	TotalTaxable         float64           `gorm:"type:numeric(18,2);not null;default:0"`
	TotalTax             float64           `gorm:"type:numeric(18,2);not null;default:0"`
	TotalPayable         float64           `gorm:"type:numeric(18,2);not null;default:0"`
	CounterpartyID       *snowflake.ID     `gorm:"index"`
	CreatedAt            time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Document) TableName() string { return "documents" }

// Transmittable reports whether the document can be submitted to the
// authority. Rejected documents keep their signed envelope and may be
// retransmitted.
func (d Document) Transmittable() bool {
	if d.SignedPayload == nil {
		return false
	}
	return d.State == StateSigned || d.State == StateRejected
}
