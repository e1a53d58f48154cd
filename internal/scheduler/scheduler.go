// Package scheduler drives unattended execution of recurring-invoice
// templates: it discovers due templates, claims them atomically, materializes
// them into documents and records the outcome.
package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/facturasv/dte-engine/internal/clock"
	"github.com/facturasv/dte-engine/internal/config"
	counterpartydomain "github.com/facturasv/dte-engine/internal/counterparty/domain"
	documentdomain "github.com/facturasv/dte-engine/internal/document/domain"
	"github.com/facturasv/dte-engine/internal/notification"
	"github.com/facturasv/dte-engine/internal/observability/metrics"
	templatedomain "github.com/facturasv/dte-engine/internal/template/domain"
)

type Scheduler struct {
	db  *gorm.DB
	log *zap.Logger

	clk            clock.Clock
	genID          *snowflake.Node
	docSvc         documentdomain.Service
	counterparties counterpartydomain.Repository
	notifier       *notification.Dispatcher
	metrics        *metrics.EngineMetrics
	cfg            config.SchedulerConfig
}

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	Clock          clock.Clock
	GenID          *snowflake.Node
	DocSvc         documentdomain.Service
	Counterparties counterpartydomain.Repository
	Notifier       *notification.Dispatcher `optional:"true"`
	Config         config.Config
}

func NewScheduler(p Params) *Scheduler {
	return &Scheduler{
		db:  p.DB,
		log: p.Log.Named("scheduler"),

		clk:            p.Clock,
		genID:          p.GenID,
		docSvc:         p.DocSvc,
		counterparties: p.Counterparties,
		notifier:       p.Notifier,
		metrics:        metrics.Engine(),
		cfg:            p.Config.Scheduler,
	}
}

// RunForever fires one tick per day at the configured UTC hour until the
// context is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	for {
		now := s.clk.Now()
		timer := time.NewTimer(nextTick(now, s.cfg.RunHourUTC).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		s.RunTick(ctx)
	}
}

// RunTick processes every due template sequentially. One failing template
// never blocks the rest, and a failure fetching the due list itself is logged
// rather than propagated.
func (s *Scheduler) RunTick(ctx context.Context) {
	s.metrics.IncSchedulerTick()

	due, err := s.DueTemplates(ctx)
	if err != nil {
		s.log.Error("failed to fetch due templates", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}
	s.log.Info("processing due templates", zap.Int("count", len(due)))

	for _, templateID := range due {
		if s.cfg.QueueEnabled {
			if err := s.Enqueue(ctx, templateID); err != nil {
				s.log.Warn("failed to enqueue template",
					zap.String("template_id", templateID.String()),
					zap.Error(err),
				)
			}
			continue
		}
		if _, err := s.ProcessTemplate(ctx, templateID); err != nil {
			s.log.Warn("template run failed",
				zap.String("template_id", templateID.String()),
				zap.Error(err),
			)
		}
	}
}

// DueTemplates returns the ids of templates ready to run: ACTIVE, due, and
// not past their end date.
func (s *Scheduler) DueTemplates(ctx context.Context) ([]snowflake.ID, error) {
	now := s.clk.Now()
	var ids []snowflake.ID
	err := s.db.WithContext(ctx).Raw(
		`SELECT id
		 FROM recurring_templates
		 WHERE status = ?
		   AND next_run_at <= ?
		   AND (end_date IS NULL OR end_date >= ?)
		 ORDER BY next_run_at ASC`,
		string(templatedomain.StatusActive),
		now,
		now,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// nextTick returns the next occurrence of the given UTC hour strictly after
// now.
func nextTick(now time.Time, hour int) time.Time {
	if hour < 0 || hour > 23 {
		hour = 1
	}
	tick := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !tick.After(now) {
		tick = tick.AddDate(0, 0, 1)
	}
	return tick
}
