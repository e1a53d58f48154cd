package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/facturasv/dte-engine/internal/authority"
	documentdomain "github.com/facturasv/dte-engine/internal/document/domain"
	"github.com/facturasv/dte-engine/internal/notification"
)

// payloadVersion is the wire schema version per DTE type.
var payloadVersion = map[string]int{
	documentdomain.TypeFactura:        1,
	documentdomain.TypeComprobante:    3,
	documentdomain.TypeNotaCredito:    3,
	documentdomain.TypeSujetoExcluido: 1,
}

func versionForType(documentType string) int {
	if v, ok := payloadVersion[documentType]; ok {
		return v
	}
	return 1
}

func (s *Service) Sign(ctx context.Context, tenantID, documentID snowflake.ID) (*documentdomain.Document, error) {
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
	// The state machine has no edge back into SIGNED; the envelope is
	// written exactly once.
	if doc.State != documentdomain.StatePending {
		return nil, documentdomain.ErrAlreadySigned
	}

	tenant, err := s.loadTenant(ctx, doc.TenantID)
	if err != nil {
		return nil, err
	}

	envelope, err := s.modes.ForTenant(tenant).Sign(ctx, tenant, doc.OriginalPayload)
	if err != nil {
		return nil, err
	}

	doc.SignedPayload = &envelope
	doc.State = documentdomain.StateSigned
	doc.UpdatedAt = time.Now().UTC()
	if err := s.db.WithContext(ctx).
		Model(&documentdomain.Document{}).
		Where("id = ?", doc.ID).
		Updates(map[string]any{
			"signed_payload": envelope,
			"state":          doc.State,
			"updated_at":     doc.UpdatedAt,
		}).Error; err != nil {
		return nil, err
	}

	s.emit(doc, notification.EventDocumentSigned, "")
	return doc, nil
}

func (s *Service) Transmit(ctx context.Context, tenantID, documentID snowflake.ID) (*documentdomain.Document, error) {
	doc, err := s.load(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, documentdomain.ErrDocumentNotFound
	}
	if !doc.Transmittable() {
		return nil, documentdomain.ErrNotSigned
	}

	tenant, err := s.loadTenant(ctx, doc.TenantID)
	if err != nil {
		return nil, err
	}

	meta := authority.SubmitMetadata{
		Environment:    tenant.Environment,
		DocumentType:   doc.DocumentType,
		GenerationCode: doc.GenerationCode,
		Version:        versionForType(doc.DocumentType),
	}

	receipt, err := s.modes.ForTenant(tenant).Transmit(ctx, tenant, *doc.SignedPayload, meta)
	if err != nil {
		return nil, s.recordTransmissionFailure(ctx, doc, err)
	}

	seal := receipt.ReceptionSeal
	processedAt := receipt.ProcessedAt
	message := receipt.Message
	doc.ReceptionSeal = &seal
	doc.ProcessedAt = &processedAt
	doc.AuthorityMessage = &message
	doc.TransmissionAttempts++
	doc.State = documentdomain.StateTransmittedOK
	doc.UpdatedAt = time.Now().UTC()
	if err := s.db.WithContext(ctx).
		Model(&documentdomain.Document{}).
		Where("id = ?", doc.ID).
		Updates(map[string]any{
			"reception_seal":        seal,
			"processed_at":          processedAt,
			"authority_message":     message,
			"transmission_attempts": doc.TransmissionAttempts,
			"state":                 doc.State,
			"updated_at":            doc.UpdatedAt,
		}).Error; err != nil {
		return nil, err
	}

	s.metrics.IncTransmission("accepted")
	s.emit(doc, notification.EventDocumentApproved, message)
	return doc, nil
}

// recordTransmissionFailure persists the REJECTED transition before the error
// is surfaced, so the stored state reflects reality even when the call
// ultimately errors.
func (s *Service) recordTransmissionFailure(ctx context.Context, doc *documentdomain.Document, cause error) error {
	var rejection *authority.RejectionError
	message := cause.Error()
	result := "error"
	if errors.As(cause, &rejection) {
		message = rejection.Message()
		result = "rejected"
	}

	doc.State = documentdomain.StateRejected
	doc.AuthorityMessage = &message
	doc.TransmissionAttempts++
	doc.UpdatedAt = time.Now().UTC()
	if err := s.db.WithContext(ctx).
		Model(&documentdomain.Document{}).
		Where("id = ?", doc.ID).
		Updates(map[string]any{
			"state":                 doc.State,
			"authority_message":     message,
			"transmission_attempts": doc.TransmissionAttempts,
			"updated_at":            doc.UpdatedAt,
		}).Error; err != nil {
		s.log.Error("failed to persist rejection state",
			zap.String("document_id", doc.ID.String()),
			zap.Error(err),
		)
	}

	s.metrics.IncTransmission(result)
	s.emit(doc, notification.EventDocumentRejected, message)

	if rejection != nil {
		return rejection
	}
	return fmt.Errorf("transmission failed: %w", cause)
}
