// Package domain contains the issuing-tenant records and their persisted
// authority tokens.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Authority environment codes ("ambiente" on the wire).
const (
	EnvironmentTest       = "00"
	EnvironmentProduction = "01"
)

// Tenant is an issuing taxpayer registered with the authority.
type Tenant struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	Name             string       `gorm:"type:text;not null"`
	NIT              string       `gorm:"type:text;not null;uniqueIndex"`
	NRC              string       `gorm:"type:text;not null"`
	Environment      string       `gorm:"type:text;not null;default:'00'"`
	Demo             bool         `gorm:"not null;default:false"`
	APIUser          string       `gorm:"type:text;not null"`
	APIPassword      string       `gorm:"type:text;not null"`
	CertificateRef   *string      `gorm:"type:text"`
	WebhookURL       *string      `gorm:"type:text"`
	EconomicActivity string       `gorm:"type:text"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }

// HasCertificate reports whether a signing certificate is configured for the
// tenant. Live-mode signing requires one.
func (t Tenant) HasCertificate() bool {
	return t.CertificateRef != nil && *t.CertificateRef != ""
}

// AuthorityToken is the durable copy of a short-lived authority access token.
// The in-memory cache takes precedence; this row is the fallback of record.
type AuthorityToken struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	Identity    string       `gorm:"type:text;not null;uniqueIndex:idx_authority_tokens_key,priority:1"`
	Environment string       `gorm:"type:text;not null;uniqueIndex:idx_authority_tokens_key,priority:2"`
	Token       string       `gorm:"type:text;not null"`
	ObtainedAt  time.Time    `gorm:"not null"`
	ExpiresAt   time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (AuthorityToken) TableName() string { return "authority_tokens" }
