package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	counterpartydomain "github.com/facturasv/dte-engine/internal/counterparty/domain"
	documentdomain "github.com/facturasv/dte-engine/internal/document/domain"
	"github.com/facturasv/dte-engine/internal/document/mode"
	"github.com/facturasv/dte-engine/internal/notification"
	"github.com/facturasv/dte-engine/internal/observability/metrics"
	tenantdomain "github.com/facturasv/dte-engine/internal/tenant/domain"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID          *snowflake.Node
	tenants        tenantdomain.Repository
	counterparties counterpartydomain.Repository
	modes          *mode.Resolver
	notifier       *notification.Dispatcher
	metrics        *metrics.EngineMetrics
}

type ServiceParam struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Tenants        tenantdomain.Repository
	Counterparties counterpartydomain.Repository
	Modes          *mode.Resolver
	Notifier       *notification.Dispatcher `optional:"true"`
}

func NewService(p ServiceParam) documentdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("document.service"),

		genID:          p.GenID,
		tenants:        p.Tenants,
		counterparties: p.Counterparties,
		modes:          p.Modes,
		notifier:       p.Notifier,
		metrics:        metrics.Engine(),
	}
}

func (s *Service) Create(ctx context.Context, req documentdomain.CreateRequest) (*documentdomain.Document, error) {
	if req.TenantID == 0 {
		return nil, documentdomain.ErrInvalidTenant
	}
	if req.Payload == nil {
		return nil, documentdomain.ErrInvalidPayload
	}
	docType := strings.TrimSpace(req.DocumentType)
	if docType == "" {
		return nil, documentdomain.ErrInvalidType
	}

	tenant, err := s.tenants.FindByID(ctx, s.db, req.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, documentdomain.ErrInvalidTenant
	}

	generationCode := strings.ToUpper(uuid.NewString())
	sequence, err := s.nextSequence(ctx, req.TenantID, docType)
	if err != nil {
		return nil, err
	}
	controlNumber := formatControlNumber(req.TenantID, docType, sequence)

	payload := clonePayload(req.Payload)
	embedIdentification(payload, generationCode, controlNumber)
	taxable, tax, payable := extractTotals(payload)

	counterpartyID := s.resolveCounterparty(ctx, req.TenantID, payload)

	now := time.Now().UTC()
	doc := &documentdomain.Document{
		ID:              s.genID.Generate(),
		TenantID:        req.TenantID,
		DocumentType:    docType,
		GenerationCode:  generationCode,
		ControlNumber:   controlNumber,
		OriginalPayload: datatypes.JSONMap(payload),
		State:           documentdomain.StatePending,
		TotalTaxable:    taxable,
		TotalTax:        tax,
		TotalPayable:    payable,
		CounterpartyID:  counterpartyID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, err
	}

	s.metrics.IncDocumentCreated(docType)
	s.emit(doc, notification.EventDocumentCreated, "")
	return doc, nil
}

func (s *Service) GetByID(ctx context.Context, tenantID, documentID snowflake.ID) (*documentdomain.Document, error) {
	doc, err := s.load(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, documentdomain.ErrDocumentNotFound
	}
	return doc, nil
}

func (s *Service) List(ctx context.Context, tenantID snowflake.ID, req documentdomain.ListRequest) ([]documentdomain.Document, error) {
	if tenantID == 0 {
		return nil, documentdomain.ErrInvalidTenant
	}
	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if state := strings.TrimSpace(req.State); state != "" {
		query = query.Where("state = ?", state)
	}
	if docType := strings.TrimSpace(req.DocumentType); docType != "" {
		query = query.Where("document_type = ?", docType)
	}

	var docs []documentdomain.Document
	err := query.Order("created_at DESC").Limit(limit).Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *Service) Cancel(ctx context.Context, tenantID, documentID snowflake.ID, reason string) (*documentdomain.Document, error) {
	doc, err := s.load(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, documentdomain.ErrDocumentNotFound
	}
	if doc.State == documentdomain.StateCancelled {
		return nil, documentdomain.ErrAlreadyCancelled
	}

	note := "ANULADO: " + strings.TrimSpace(reason)
	message := note
	if doc.AuthorityMessage != nil && *doc.AuthorityMessage != "" {
		message = *doc.AuthorityMessage + " | " + note
	}

	doc.State = documentdomain.StateCancelled
	doc.AuthorityMessage = &message
	doc.UpdatedAt = time.Now().UTC()
	if err := s.db.WithContext(ctx).
		Model(&documentdomain.Document{}).
		Where("id = ?", doc.ID).
		Updates(map[string]any{
			"state":             doc.State,
			"authority_message": message,
			"updated_at":        doc.UpdatedAt,
		}).Error; err != nil {
		return nil, err
	}

	s.emit(doc, notification.EventDocumentCancelled, note)
	return doc, nil
}

// load fetches a document scoped to the tenant, or globally when tenantID is
// zero (internal callers only).
func (s *Service) load(ctx context.Context, tenantID, documentID snowflake.ID) (*documentdomain.Document, error) {
	query := s.db.WithContext(ctx)
	var doc documentdomain.Document
	var err error
	if tenantID == 0 {
		err = query.First(&doc, "id = ?", documentID).Error
	} else {
		err = query.First(&doc, "id = ? AND tenant_id = ?", documentID, tenantID).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

func (s *Service) loadTenant(ctx context.Context, tenantID snowflake.ID) (*tenantdomain.Tenant, error) {
	tenant, err := s.tenants.FindByID(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, documentdomain.ErrInvalidTenant
	}
	return tenant, nil
}

func (s *Service) emit(doc *documentdomain.Document, eventType, message string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Emit(notification.Event{
		TenantID: doc.TenantID,
		Type:     eventType,
		Payload: notification.DocumentPayload{
			DocumentID:     doc.ID.String(),
			GenerationCode: doc.GenerationCode,
			ControlNumber:  doc.ControlNumber,
			State:          string(doc.State),
			Message:        message,
		}.ToMap(),
		CorrelationID: doc.GenerationCode,
	})
}

func clonePayload(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

// embedIdentification writes the generated codes into the payload's
// identification block, creating the block when the caller omitted it.
func embedIdentification(payload map[string]any, generationCode, controlNumber string) {
	block, ok := payload["identificacion"].(map[string]any)
	if !ok {
		block = map[string]any{}
	}
	block["codigoGeneracion"] = generationCode
	block["numeroControl"] = controlNumber
	payload["identificacion"] = block
}
