package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	documentdomain "github.com/facturasv/dte-engine/internal/document/domain"
	"github.com/facturasv/dte-engine/internal/notification"
	"github.com/facturasv/dte-engine/internal/schedule"
	templatedomain "github.com/facturasv/dte-engine/internal/template/domain"
)

// ivaRate is the Salvadoran value-added tax rate applied to template totals.
const ivaRate = 0.13

// ProcessTemplate executes one recurring template end to end. Both the daily
// tick and the manual run-now path funnel through here; the atomic claim is
// the sole concurrency guard, so concurrent invocations are safe across
// processes sharing the database.
func (s *Scheduler) ProcessTemplate(ctx context.Context, templateID snowflake.ID) (snowflake.ID, error) {
	if err := s.claim(ctx, templateID); err != nil {
		return 0, err
	}

	tmpl, err := s.loadTemplate(ctx, templateID)
	if err != nil {
		return 0, err
	}
	if tmpl == nil {
		// The claim succeeded against a row that no longer loads; surface
		// the inconsistency instead of swallowing it.
		return 0, templatedomain.ErrTemplateNotFound
	}

	docID, err := s.execute(ctx, tmpl)
	if err != nil {
		s.recordFailure(ctx, tmpl, err)
		s.metrics.IncTemplateRun("failure")
		return 0, err
	}

	s.recordSuccess(ctx, tmpl, docID)
	s.metrics.IncTemplateRun("success")
	return docID, nil
}

// claim flips ACTIVE to PROCESSING in a single conditional write. Losing the
// race is reported as ErrTemplateUnavailable.
func (s *Scheduler) claim(ctx context.Context, templateID snowflake.ID) error {
	result := s.db.WithContext(ctx).Exec(
		`UPDATE recurring_templates
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(templatedomain.StatusProcessing),
		s.clk.Now(),
		templateID,
		string(templatedomain.StatusActive),
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return templatedomain.ErrTemplateUnavailable
	}
	return nil
}

func (s *Scheduler) execute(ctx context.Context, tmpl *templatedomain.RecurringTemplate) (snowflake.ID, error) {
	payload, err := s.materialize(ctx, tmpl)
	if err != nil {
		return 0, err
	}

	doc, err := s.docSvc.Create(ctx, documentdomain.CreateRequest{
		TenantID:     tmpl.TenantID,
		DocumentType: tmpl.DocumentType,
		Payload:      payload,
	})
	if err != nil {
		return 0, err
	}

	if tmpl.Mode == templatedomain.ModeDraftSign && tmpl.AutoTransmit {
		// A created-but-unsigned document still counts as a successful run;
		// the template's job is generating the document, not guaranteeing
		// downstream signing.
		if _, err := s.docSvc.Sign(ctx, 0, doc.ID); err != nil {
			s.log.Warn("auto-sign failed for generated document",
				zap.String("template_id", tmpl.ID.String()),
				zap.String("document_id", doc.ID.String()),
				zap.Error(err),
			)
		}
	}

	return doc.ID, nil
}

// materialize builds the document payload from the template's line items.
// Tax is computed once at the aggregate level, never per line.
func (s *Scheduler) materialize(ctx context.Context, tmpl *templatedomain.RecurringTemplate) (map[string]any, error) {
	items, err := tmpl.Items()
	if err != nil {
		return nil, fmt.Errorf("malformed line items: %w", err)
	}
	if len(items) == 0 {
		return nil, templatedomain.ErrInvalidLineItems
	}

	var totalTaxable float64
	body := make([]any, 0, len(items))
	for i, item := range items {
		lineTotal := item.Quantity*item.UnitPrice - item.Discount
		totalTaxable += lineTotal
		body = append(body, map[string]any{
			"numItem":      i + 1,
			"descripcion":  item.Description,
			"cantidad":     item.Quantity,
			"precioUni":    item.UnitPrice,
			"montoDescu":   item.Discount,
			"ventaGravada": round2(lineTotal),
		})
	}
	totalTaxable = round2(totalTaxable)
	tax := round2(totalTaxable * ivaRate)
	payable := round2(totalTaxable + tax)

	payload := map[string]any{
		"cuerpoDocumento": body,
		"resumen": map[string]any{
			"totalGravada": totalTaxable,
			"totalIva":     tax,
			"totalPagar":   payable,
		},
	}

	cp, err := s.counterparties.FindByID(ctx, s.db, tmpl.TenantID, tmpl.CounterpartyID)
	if err != nil {
		return nil, err
	}
	if cp != nil {
		receptor := map[string]any{
			"nombre":       cp.Name,
			"numDocumento": cp.DocumentNumber,
		}
		if cp.Email != nil {
			receptor["correo"] = *cp.Email
		}
		if cp.Phone != nil {
			receptor["telefono"] = *cp.Phone
		}
		payload["receptor"] = receptor
	}

	return payload, nil
}

// recordSuccess appends the history row and reactivates the template in one
// atomic unit. The next run is always computed from the original start date.
func (s *Scheduler) recordSuccess(ctx context.Context, tmpl *templatedomain.RecurringTemplate, docID snowflake.ID) {
	now := s.clk.Now()
	nextRun := schedule.NextRun(tmpl.Interval, tmpl.AnchorDay, tmpl.DayOfWeek, tmpl.StartDate, now)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		history := &templatedomain.ExecutionHistory{
			ID:         s.genID.Generate(),
			TemplateID: tmpl.ID,
			DocumentID: &docID,
			Outcome:    templatedomain.OutcomeSuccess,
			RunAt:      now,
		}
		if err := tx.Create(history).Error; err != nil {
			return err
		}
		return tx.Exec(
			`UPDATE recurring_templates
			 SET status = ?, last_run_at = ?, next_run_at = ?,
			     consecutive_failures = 0, last_error = NULL, updated_at = ?
			 WHERE id = ?`,
			string(templatedomain.StatusActive),
			now,
			nextRun,
			now,
			tmpl.ID,
		).Error
	})
	if err != nil {
		s.log.Error("failed to record successful run",
			zap.String("template_id", tmpl.ID.String()),
			zap.Error(err),
		)
	}
}

// recordFailure appends the history row, bumps the failure counter and either
// reschedules or suspends the template. A suspended template keeps its old
// nextRunAt so it cannot silently resume.
func (s *Scheduler) recordFailure(ctx context.Context, tmpl *templatedomain.RecurringTemplate, cause error) {
	now := s.clk.Now()
	message := cause.Error()
	failures := tmpl.ConsecutiveFailures + 1
	suspended := failures >= templatedomain.MaxConsecutiveFailures

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		history := &templatedomain.ExecutionHistory{
			ID:         s.genID.Generate(),
			TemplateID: tmpl.ID,
			Outcome:    templatedomain.OutcomeFailed,
			Error:      &message,
			RunAt:      now,
		}
		if err := tx.Create(history).Error; err != nil {
			return err
		}

		if suspended {
			return tx.Exec(
				`UPDATE recurring_templates
				 SET status = ?, consecutive_failures = ?, last_error = ?,
				     last_run_at = ?, updated_at = ?
				 WHERE id = ?`,
				string(templatedomain.StatusSuspendedError),
				failures,
				message,
				now,
				now,
				tmpl.ID,
			).Error
		}

		nextRun := schedule.NextRun(tmpl.Interval, tmpl.AnchorDay, tmpl.DayOfWeek, tmpl.StartDate, now)
		return tx.Exec(
			`UPDATE recurring_templates
			 SET status = ?, consecutive_failures = ?, last_error = ?,
			     last_run_at = ?, next_run_at = ?, updated_at = ?
			 WHERE id = ?`,
			string(templatedomain.StatusActive),
			failures,
			message,
			now,
			nextRun,
			now,
			tmpl.ID,
		).Error
	})
	if err != nil {
		s.log.Error("failed to record failed run",
			zap.String("template_id", tmpl.ID.String()),
			zap.Error(err),
		)
		return
	}

	if suspended {
		s.metrics.IncTemplateSuspended()
		s.log.Warn("template suspended after repeated failures",
			zap.String("template_id", tmpl.ID.String()),
			zap.Int("consecutive_failures", failures),
		)
		if s.notifier != nil {
			s.notifier.Emit(notification.Event{
				TenantID: tmpl.TenantID,
				Type:     notification.EventTemplateSuspended,
				Payload: notification.TemplatePayload{
					TemplateID:          tmpl.ID.String(),
					Status:              string(templatedomain.StatusSuspendedError),
					ConsecutiveFailures: failures,
					LastError:           message,
				}.ToMap(),
				CorrelationID: tmpl.ID.String(),
			})
		}
	}
}

func (s *Scheduler) loadTemplate(ctx context.Context, templateID snowflake.ID) (*templatedomain.RecurringTemplate, error) {
	var tmpl templatedomain.RecurringTemplate
	err := s.db.WithContext(ctx).First(&tmpl, "id = ?", templateID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tmpl, nil
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
