package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/facturasv/dte-engine/internal/schedule"
)

type CreateRequest struct {
	TenantID       snowflake.ID
	CounterpartyID snowflake.ID
	DocumentType   string
	Interval       schedule.Interval
	AnchorDay      *int
	DayOfWeek      *int
	Mode           TemplateMode
	AutoTransmit   bool
	LineItems      []LineItem
	StartDate      time.Time
	EndDate        *time.Time
}

type ListRequest struct {
	Status string
	Limit  int
}

// Service owns operator-facing template management. Automatic execution goes
// through the scheduler, not through this interface.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*RecurringTemplate, error)
	GetByID(ctx context.Context, tenantID, id snowflake.ID) (*RecurringTemplate, error)
	List(ctx context.Context, tenantID snowflake.ID, req ListRequest) ([]RecurringTemplate, error)
	History(ctx context.Context, tenantID, id snowflake.ID, limit int) ([]ExecutionHistory, error)
	Pause(ctx context.Context, tenantID, id snowflake.ID) (*RecurringTemplate, error)
	Resume(ctx context.Context, tenantID, id snowflake.ID) (*RecurringTemplate, error)
	Cancel(ctx context.Context, tenantID, id snowflake.ID) (*RecurringTemplate, error)
}

var (
	ErrTemplateNotFound    = errors.New("template_not_found")
	ErrInvalidTransition   = errors.New("invalid_template_transition")
	ErrTemplateUnavailable = errors.New("template_not_available_for_processing")
	ErrInvalidInterval     = errors.New("invalid_interval")
	ErrInvalidAnchorDay    = errors.New("invalid_anchor_day")
	ErrInvalidDayOfWeek    = errors.New("invalid_day_of_week")
	ErrInvalidLineItems    = errors.New("invalid_line_items")
	ErrInvalidTenant       = errors.New("invalid_tenant")
)
