package service

import (
	"context"
	"testing"

	counterpartydomain "github.com/facturasv/dte-engine/internal/counterparty/domain"
	documentdomain "github.com/facturasv/dte-engine/internal/document/domain"
)

func TestCreateLinksCounterpartyByDocumentNumber(t *testing.T) {
	db := setupDocTestDB(t)
	svc, node := newTestService(t, db)
	tenantID := insertDemoTenant(t, db, node)
	ctx := context.Background()

	payload := map[string]any{
		"receptor": map[string]any{
			"nombre":       "Cliente Uno",
			"numDocumento": "06141234567890",
			"correo":       "uno@example.com",
		},
	}

	first, err := svc.Create(ctx, documentdomain.CreateRequest{
		TenantID:     tenantID,
		DocumentType: documentdomain.TypeFactura,
		Payload:      payload,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.CounterpartyID == nil {
		t.Fatal("expected counterparty linkage")
	}

	// Same receiver on a later document reuses the record.
	second, err := svc.Create(ctx, documentdomain.CreateRequest{
		TenantID:     tenantID,
		DocumentType: documentdomain.TypeFactura,
		Payload:      payload,
	})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if second.CounterpartyID == nil || *second.CounterpartyID != *first.CounterpartyID {
		t.Fatalf("expected reuse of counterparty %v, got %v", first.CounterpartyID, second.CounterpartyID)
	}

	var count int64
	if err := db.Model(&counterpartydomain.Counterparty{}).Where("tenant_id = ?", tenantID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single counterparty, got %d", count)
	}
}

func TestCreatePatchesCounterpartyContact(t *testing.T) {
	db := setupDocTestDB(t)
	svc, node := newTestService(t, db)
	tenantID := insertDemoTenant(t, db, node)
	ctx := context.Background()

	if _, err := svc.Create(ctx, documentdomain.CreateRequest{
		TenantID:     tenantID,
		DocumentType: documentdomain.TypeFactura,
		Payload: map[string]any{
			"receptor": map[string]any{"nombre": "Cliente Dos", "numDocumento": "0614000011112222"},
		},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	doc, err := svc.Create(ctx, documentdomain.CreateRequest{
		TenantID:     tenantID,
		DocumentType: documentdomain.TypeFactura,
		Payload: map[string]any{
			"receptor": map[string]any{
				"nombre":       "Cliente Dos",
				"numDocumento": "0614000011112222",
				"correo":       "dos@example.com",
				"telefono":     "2222-0000",
			},
		},
	})
	if err != nil {
		t.Fatalf("create with contact: %v", err)
	}

	var cp counterpartydomain.Counterparty
	if err := db.First(&cp, "id = ?", *doc.CounterpartyID).Error; err != nil {
		t.Fatalf("load counterparty: %v", err)
	}
	if cp.Email == nil || *cp.Email != "dos@example.com" {
		t.Fatalf("email not patched: %v", cp.Email)
	}
	if cp.Phone == nil || *cp.Phone != "2222-0000" {
		t.Fatalf("phone not patched: %v", cp.Phone)
	}
}

func TestCreateWithoutReceiverLeavesDocumentUnlinked(t *testing.T) {
	db := setupDocTestDB(t)
	svc, node := newTestService(t, db)
	tenantID := insertDemoTenant(t, db, node)

	doc, err := svc.Create(context.Background(), documentdomain.CreateRequest{
		TenantID:     tenantID,
		DocumentType: documentdomain.TypeFactura,
		Payload:      map[string]any{},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if doc.CounterpartyID != nil {
		t.Fatalf("expected unlinked document, got counterparty %v", *doc.CounterpartyID)
	}
}

func TestCreateWithNameOnlyReceiverFindsByName(t *testing.T) {
	db := setupDocTestDB(t)
	svc, node := newTestService(t, db)
	tenantID := insertDemoTenant(t, db, node)
	ctx := context.Background()

	first, err := svc.Create(ctx, documentdomain.CreateRequest{
		TenantID:     tenantID,
		DocumentType: documentdomain.TypeFactura,
		Payload:      map[string]any{"receptor": map[string]any{"nombre": "Solo Nombre"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.CounterpartyID == nil {
		t.Fatal("expected auto-created counterparty")
	}

	var cp counterpartydomain.Counterparty
	if err := db.First(&cp, "id = ?", *first.CounterpartyID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	// Placeholder document number keeps the uniqueness constraint satisfied.
	if cp.DocumentNumber == "" {
		t.Fatal("expected placeholder document number")
	}

	second, err := svc.Create(ctx, documentdomain.CreateRequest{
		TenantID:     tenantID,
		DocumentType: documentdomain.TypeFactura,
		Payload:      map[string]any{"receptor": map[string]any{"nombre": "Solo Nombre"}},
	})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if second.CounterpartyID == nil || *second.CounterpartyID != *first.CounterpartyID {
		t.Fatal("expected name lookup to reuse the record")
	}
}
