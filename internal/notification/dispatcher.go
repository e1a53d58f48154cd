package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/facturasv/dte-engine/internal/config"
	"github.com/facturasv/dte-engine/internal/observability/tracing"
	tenantdomain "github.com/facturasv/dte-engine/internal/tenant/domain"
)

// Event describes a lifecycle notification to record and deliver.
type Event struct {
	TenantID      snowflake.ID
	Type          string
	Payload       map[string]any
	CorrelationID string
}

// Dispatcher records events in the notification outbox and posts them to the
// tenant webhook when one is configured. Emit never blocks the caller on
// delivery and never returns an error to it.
type Dispatcher struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	tenants tenantdomain.Repository
	client  *http.Client
}

func NewDispatcher(
	db *gorm.DB,
	log *zap.Logger,
	genID *snowflake.Node,
	tenants tenantdomain.Repository,
	cfg config.Config,
) *Dispatcher {
	return &Dispatcher{
		db:      db,
		log:     log.Named("notification"),
		genID:   genID,
		tenants: tenants,
		client:  tracing.WrapHTTPClient(&http.Client{Timeout: cfg.Webhook.Timeout}),
	}
}

// Emit dispatches the event asynchronously. All failures are logged inside the
// detached task itself.
func (d *Dispatcher) Emit(event Event) {
	if d == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := d.deliver(ctx, event); err != nil {
			d.log.Warn("notification dispatch failed",
				zap.String("event_type", event.Type),
				zap.String("correlation_id", event.CorrelationID),
				zap.Error(err),
			)
		}
	}()
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) error {
	name := strings.TrimSpace(event.Type)
	if name == "" {
		return fmt.Errorf("missing event type")
	}
	if event.TenantID == 0 {
		return fmt.Errorf("missing tenant id")
	}

	payload := datatypes.JSONMap{}
	for key, value := range event.Payload {
		if strings.TrimSpace(key) == "" {
			continue
		}
		payload[key] = value
	}

	now := time.Now().UTC()
	if err := d.db.WithContext(ctx).Exec(
		`INSERT INTO notification_events (id, tenant_id, event_type, payload, correlation_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.genID.Generate(),
		event.TenantID,
		name,
		payload,
		event.CorrelationID,
		now,
	).Error; err != nil {
		// The webhook may still go out; the outbox row is an audit trail,
		// not a delivery precondition.
		d.log.Warn("failed to record notification event", zap.Error(err))
	}

	tenant, err := d.tenants.FindByID(ctx, d.db, event.TenantID)
	if err != nil {
		return err
	}
	if tenant == nil || tenant.WebhookURL == nil || *tenant.WebhookURL == "" {
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"event":          name,
		"correlation_id": event.CorrelationID,
		"emitted_at":     now.Format(time.RFC3339),
		"data":           map[string]any(payload),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *tenant.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-DTE-Event", name)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
