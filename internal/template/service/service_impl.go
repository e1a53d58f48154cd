package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/facturasv/dte-engine/internal/clock"
	"github.com/facturasv/dte-engine/internal/schedule"
	templatedomain "github.com/facturasv/dte-engine/internal/template/domain"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID *snowflake.Node
	clk   clock.Clock
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

func NewService(p ServiceParam) templatedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("template.service"),

		genID: p.GenID,
		clk:   p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req templatedomain.CreateRequest) (*templatedomain.RecurringTemplate, error) {
	if req.TenantID == 0 {
		return nil, templatedomain.ErrInvalidTenant
	}
	if !validInterval(req.Interval) {
		return nil, templatedomain.ErrInvalidInterval
	}
	if req.AnchorDay != nil && (*req.AnchorDay < 1 || *req.AnchorDay > 31) {
		return nil, templatedomain.ErrInvalidAnchorDay
	}
	if req.DayOfWeek != nil && (*req.DayOfWeek < 0 || *req.DayOfWeek > 6) {
		return nil, templatedomain.ErrInvalidDayOfWeek
	}
	if len(req.LineItems) == 0 {
		return nil, templatedomain.ErrInvalidLineItems
	}
	for _, item := range req.LineItems {
		if item.Quantity <= 0 || item.UnitPrice < 0 || item.Discount < 0 {
			return nil, templatedomain.ErrInvalidLineItems
		}
	}

	items, err := json.Marshal(req.LineItems)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	startDate := req.StartDate
	if startDate.IsZero() {
		startDate = now
	}

	mode := req.Mode
	if mode == "" {
		mode = templatedomain.ModeDraft
	}

	tmpl := &templatedomain.RecurringTemplate{
		ID:             s.genID.Generate(),
		TenantID:       req.TenantID,
		CounterpartyID: req.CounterpartyID,
		DocumentType:   strings.TrimSpace(req.DocumentType),
		Interval:       req.Interval,
		AnchorDay:      req.AnchorDay,
		DayOfWeek:      req.DayOfWeek,
		Mode:           mode,
		AutoTransmit:   req.AutoTransmit,
		LineItems:      items,
		Status:         templatedomain.StatusActive,
		NextRunAt:      schedule.NextRun(req.Interval, req.AnchorDay, req.DayOfWeek, startDate, now),
		StartDate:      startDate,
		EndDate:        req.EndDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.WithContext(ctx).Create(tmpl).Error; err != nil {
		return nil, err
	}
	return tmpl, nil
}

func (s *Service) GetByID(ctx context.Context, tenantID, id snowflake.ID) (*templatedomain.RecurringTemplate, error) {
	tmpl, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, templatedomain.ErrTemplateNotFound
	}
	return tmpl, nil
}

func (s *Service) List(ctx context.Context, tenantID snowflake.ID, req templatedomain.ListRequest) ([]templatedomain.RecurringTemplate, error) {
	if tenantID == 0 {
		return nil, templatedomain.ErrInvalidTenant
	}
	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if status := strings.TrimSpace(req.Status); status != "" {
		query = query.Where("status = ?", status)
	}

	var templates []templatedomain.RecurringTemplate
	if err := query.Order("created_at DESC").Limit(limit).Find(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}

func (s *Service) History(ctx context.Context, tenantID, id snowflake.ID, limit int) ([]templatedomain.ExecutionHistory, error) {
	if _, err := s.GetByID(ctx, tenantID, id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var history []templatedomain.ExecutionHistory
	err := s.db.WithContext(ctx).
		Where("template_id = ?", id).
		Order("run_at DESC").
		Limit(limit).
		Find(&history).Error
	if err != nil {
		return nil, err
	}
	return history, nil
}

// Pause parks an ACTIVE or SUSPENDED_ERROR template.
func (s *Service) Pause(ctx context.Context, tenantID, id snowflake.ID) (*templatedomain.RecurringTemplate, error) {
	return s.transition(ctx, tenantID, id,
		[]templatedomain.TemplateStatus{templatedomain.StatusActive, templatedomain.StatusSuspendedError},
		func(tmpl *templatedomain.RecurringTemplate, now time.Time) map[string]any {
			tmpl.Status = templatedomain.StatusPaused
			return map[string]any{"status": tmpl.Status, "updated_at": now}
		})
}

// Resume reactivates a PAUSED or SUSPENDED_ERROR template, resetting the
// failure counter and recomputing the next run.
func (s *Service) Resume(ctx context.Context, tenantID, id snowflake.ID) (*templatedomain.RecurringTemplate, error) {
	return s.transition(ctx, tenantID, id,
		[]templatedomain.TemplateStatus{templatedomain.StatusPaused, templatedomain.StatusSuspendedError},
		func(tmpl *templatedomain.RecurringTemplate, now time.Time) map[string]any {
			tmpl.Status = templatedomain.StatusActive
			tmpl.ConsecutiveFailures = 0
			tmpl.LastError = nil
			tmpl.NextRunAt = schedule.NextRun(tmpl.Interval, tmpl.AnchorDay, tmpl.DayOfWeek, tmpl.StartDate, now)
			return map[string]any{
				"status":               tmpl.Status,
				"consecutive_failures": 0,
				"last_error":           nil,
				"next_run_at":          tmpl.NextRunAt,
				"updated_at":           now,
			}
		})
}

// Cancel terminates a template. Cancellation is terminal.
func (s *Service) Cancel(ctx context.Context, tenantID, id snowflake.ID) (*templatedomain.RecurringTemplate, error) {
	return s.transition(ctx, tenantID, id,
		[]templatedomain.TemplateStatus{
			templatedomain.StatusActive,
			templatedomain.StatusPaused,
			templatedomain.StatusSuspendedError,
			templatedomain.StatusProcessing,
		},
		func(tmpl *templatedomain.RecurringTemplate, now time.Time) map[string]any {
			tmpl.Status = templatedomain.StatusCancelled
			return map[string]any{"status": tmpl.Status, "updated_at": now}
		})
}

func (s *Service) transition(
	ctx context.Context,
	tenantID, id snowflake.ID,
	from []templatedomain.TemplateStatus,
	apply func(tmpl *templatedomain.RecurringTemplate, now time.Time) map[string]any,
) (*templatedomain.RecurringTemplate, error) {
	tmpl, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, templatedomain.ErrTemplateNotFound
	}

	allowed := false
	for _, status := range from {
		if tmpl.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, templatedomain.ErrInvalidTransition
	}

	now := s.clk.Now()
	updates := apply(tmpl, now)
	tmpl.UpdatedAt = now
	if err := s.db.WithContext(ctx).
		Model(&templatedomain.RecurringTemplate{}).
		Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return nil, err
	}
	return tmpl, nil
}

func (s *Service) load(ctx context.Context, tenantID, id snowflake.ID) (*templatedomain.RecurringTemplate, error) {
	var tmpl templatedomain.RecurringTemplate
	err := s.db.WithContext(ctx).First(&tmpl, "id = ? AND tenant_id = ?", id, tenantID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tmpl, nil
}

func validInterval(interval schedule.Interval) bool {
	switch interval {
	case schedule.IntervalDaily, schedule.IntervalWeekly, schedule.IntervalMonthly, schedule.IntervalYearly:
		return true
	default:
		return false
	}
}
