package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	counterpartydomain "github.com/facturasv/dte-engine/internal/counterparty/domain"
)

type receiverInfo struct {
	Name           string
	DocumentNumber string
	Email          *string
	Phone          *string
}

// resolveCounterparty links the document to a counterparty record, creating
// one when no match exists. Linkage is best effort: any failure here is
// logged and the document is created unlinked.
//
// The find-then-create pair is deliberately not atomic; a uniqueness
// violation during create is handled by re-resolving when a document number
// was supplied.
func (s *Service) resolveCounterparty(ctx context.Context, tenantID snowflake.ID, payload map[string]any) *snowflake.ID {
	info := extractReceiver(payload)
	if info.Name == "" && info.DocumentNumber == "" {
		return nil
	}

	var (
		match *counterpartydomain.Counterparty
		err   error
	)
	if info.DocumentNumber != "" {
		match, err = s.counterparties.FindByDocumentNumber(ctx, s.db, tenantID, info.DocumentNumber)
	} else {
		match, err = s.counterparties.FindByName(ctx, s.db, tenantID, info.Name)
	}
	if err != nil {
		s.log.Warn("counterparty lookup failed", zap.Error(err))
		return nil
	}

	if match != nil {
		s.patchContact(ctx, match, info)
		id := match.ID
		return &id
	}

	documentNumber := info.DocumentNumber
	if documentNumber == "" {
		// Placeholder keeps the per-tenant uniqueness constraint satisfied
		// for receivers that did not supply a document number.
		documentNumber = "AUTO-" + s.genID.Generate().String()
	}

	now := time.Now().UTC()
	created := &counterpartydomain.Counterparty{
		ID:             s.genID.Generate(),
		TenantID:       tenantID,
		Name:           info.Name,
		DocumentNumber: documentNumber,
		Email:          info.Email,
		Phone:          info.Phone,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = s.counterparties.Insert(ctx, s.db, created)
	if err == nil {
		id := created.ID
		return &id
	}

	if errors.Is(err, counterpartydomain.ErrDuplicateDocument) && info.DocumentNumber != "" {
		match, lookupErr := s.counterparties.FindByDocumentNumber(ctx, s.db, tenantID, info.DocumentNumber)
		if lookupErr == nil && match != nil {
			id := match.ID
			return &id
		}
	}

	s.log.Warn("counterparty creation failed, document will be unlinked", zap.Error(err))
	return nil
}

// patchContact updates mutable contact fields when the incoming values
// differ. A failed patch never affects document creation.
func (s *Service) patchContact(ctx context.Context, match *counterpartydomain.Counterparty, info receiverInfo) {
	changed := false
	if info.Name != "" && info.Name != match.Name {
		match.Name = info.Name
		changed = true
	}
	if info.Email != nil && !equalPtr(info.Email, match.Email) {
		match.Email = info.Email
		changed = true
	}
	if info.Phone != nil && !equalPtr(info.Phone, match.Phone) {
		match.Phone = info.Phone
		changed = true
	}
	if !changed {
		return
	}
	if err := s.counterparties.UpdateContact(ctx, s.db, match); err != nil {
		s.log.Warn("counterparty contact patch failed", zap.Error(err))
	}
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func extractReceiver(payload map[string]any) receiverInfo {
	block, ok := payload["receptor"].(map[string]any)
	if !ok {
		return receiverInfo{}
	}
	info := receiverInfo{
		Name:           trimmedString(block["nombre"]),
		DocumentNumber: trimmedString(block["numDocumento"]),
	}
	if email := trimmedString(block["correo"]); email != "" {
		info.Email = &email
	}
	if phone := trimmedString(block["telefono"]); phone != "" {
		info.Phone = &phone
	}
	return info
}

func trimmedString(value any) string {
	s, _ := value.(string)
	return strings.TrimSpace(s)
}
