// Package domain contains the recurring-invoice template records.
package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"

	"github.com/facturasv/dte-engine/internal/schedule"
)

// TemplateStatus is the lifecycle status of a recurring template.
type TemplateStatus string

const (
	StatusActive         TemplateStatus = "ACTIVE"
	StatusPaused         TemplateStatus = "PAUSED"
	StatusSuspendedError TemplateStatus = "SUSPENDED_ERROR"
	StatusProcessing     TemplateStatus = "PROCESSING"
	StatusCancelled      TemplateStatus = "CANCELLED"
)

// TemplateMode controls how far each run takes the generated document.
type TemplateMode string

const (
	ModeDraft     TemplateMode = "DRAFT"
	ModeDraftSign TemplateMode = "DRAFT_AND_SIGN"
)

// MaxConsecutiveFailures is the suspension threshold: the run that records
// this many consecutive failures parks the template in SUSPENDED_ERROR.
const MaxConsecutiveFailures = 3

// LineItem is one billable line materialized into each generated document.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Discount    float64 `json:"discount"`
}

// RecurringTemplate is a reusable recipe for generating documents on a
// calendar schedule.
type RecurringTemplate struct {
	ID                  snowflake.ID      `gorm:"primaryKey"`
	TenantID            snowflake.ID      `gorm:"not null;index"`
	CounterpartyID      snowflake.ID      `gorm:"not null"`
	DocumentType        string            `gorm:"type:text;not null"`
	Interval            schedule.Interval `gorm:"type:text;not null"`
	AnchorDay           *int              `gorm:""`
	DayOfWeek           *int              `gorm:""`
	Mode                TemplateMode      `gorm:"type:text;not null;default:'DRAFT'"`
	AutoTransmit        bool              `gorm:"not null;default:false"`
	LineItems           datatypes.JSON    `gorm:"type:jsonb;not null"`
	Status              TemplateStatus    `gorm:"type:text;not null;default:'ACTIVE';index"`
	ConsecutiveFailures int               `gorm:"not null;default:0"`
	LastError           *string           `gorm:"type:text"`
	NextRunAt           time.Time         `gorm:"not null;index"`
	LastRunAt           *time.Time        `gorm:""`
	StartDate           time.Time         `gorm:"not null"`
	EndDate             *time.Time        `gorm:""`
	CreatedAt           time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt           time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (RecurringTemplate) TableName() string { return "recurring_templates" }

// Items decodes the stored line items.
func (t *RecurringTemplate) Items() ([]LineItem, error) {
	var items []LineItem
	if len(t.LineItems) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(t.LineItems, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Execution outcomes.
const (
	OutcomeSuccess = "SUCCESS"
	OutcomeFailed  = "FAILED"
)

// ExecutionHistory is the append-only log of template runs. Rows are never
// mutated after creation.
type ExecutionHistory struct {
	ID         snowflake.ID  `gorm:"primaryKey"`
	TemplateID snowflake.ID  `gorm:"not null;index"`
	DocumentID *snowflake.ID `gorm:""`
	Outcome    string        `gorm:"type:text;not null"`
	Error      *string       `gorm:"type:text"`
	RunAt      time.Time     `gorm:"not null"`
}

// TableName sets the database table name.
func (ExecutionHistory) TableName() string { return "execution_history" }
