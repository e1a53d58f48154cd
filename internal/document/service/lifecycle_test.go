package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/facturasv/dte-engine/internal/authority"
	counterpartyrepo "github.com/facturasv/dte-engine/internal/counterparty/repository"
	documentdomain "github.com/facturasv/dte-engine/internal/document/domain"
	"github.com/facturasv/dte-engine/internal/document/mode"
	"github.com/facturasv/dte-engine/internal/observability/metrics"
	tenantdomain "github.com/facturasv/dte-engine/internal/tenant/domain"
	tenantrepo "github.com/facturasv/dte-engine/internal/tenant/repository"
)

type stubSigner struct {
	loaded   bool
	envelope string
}

func (s *stubSigner) IsLoaded(_ *tenantdomain.Tenant) bool { return s.loaded }

func (s *stubSigner) Sign(_ context.Context, _ *tenantdomain.Tenant, _ map[string]any) (string, error) {
	return s.envelope, nil
}

type stubTransmitter struct {
	receipt  *authority.Receipt
	err      error
	errOnce  error
	gotToken string
	calls    int
}

func (s *stubTransmitter) Submit(_ context.Context, token, _ string, _ authority.SubmitMetadata) (*authority.Receipt, error) {
	s.calls++
	s.gotToken = token
	if s.errOnce != nil {
		err := s.errOnce
		s.errOnce = nil
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.receipt, nil
}

type stubTokenAuth struct{}

func (stubTokenAuth) Authenticate(_ context.Context, _ authority.Credentials) (*authority.Token, error) {
	return &authority.Token{Value: "live-token"}, nil
}

func newLiveTestService(t *testing.T, db *gorm.DB, signer authority.Signer, transmitter authority.Transmitter) (*Service, *snowflake.Node) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	clk := &testClock{now: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}
	tenants := tenantrepo.Provide(node)
	tokens := authority.NewTokenCache(db, zap.NewNop(), clk, node, tenants, stubTokenAuth{}, 0)
	svc := &Service{
		db:             db,
		log:            zap.NewNop(),
		genID:          node,
		tenants:        tenants,
		counterparties: counterpartyrepo.Provide(),
		modes:          mode.NewResolver(mode.NewLiveMode(signer, transmitter, tokens), mode.NewDemoMode(clk)),
		metrics:        metrics.Engine(),
	}
	return svc, node
}

func insertLiveTenant(t *testing.T, db *gorm.DB, node *snowflake.Node) snowflake.ID {
	t.Helper()
	id := node.Generate()
	tenant := tenantdomain.Tenant{
		ID:          id,
		Name:        "Live Issuer",
		NIT:         "NIT-" + id.String(),
		NRC:         "222222-2",
		Environment: tenantdomain.EnvironmentProduction,
		Demo:        false,
		APIUser:     "live",
		APIPassword: "live-secret",
	}
	if err := db.Create(&tenant).Error; err != nil {
		t.Fatalf("insert tenant: %v", err)
	}
	return tenant.ID
}

func createSignedDocument(t *testing.T, svc *Service, tenantID snowflake.ID) *documentdomain.Document {
	t.Helper()
	ctx := context.Background()
	doc, err := svc.Create(ctx, documentdomain.CreateRequest{
		TenantID:     tenantID,
		DocumentType: documentdomain.TypeFactura,
		Payload:      map[string]any{"emisor": map[string]any{"nombre": "Live Issuer"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	signed, err := svc.Sign(ctx, tenantID, doc.ID)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestTransmitLiveUsesCachedToken(t *testing.T) {
	db := setupDocTestDB(t)
	signer := &stubSigner{loaded: true, envelope: "header.payload.signature"}
	transmitter := &stubTransmitter{receipt: &authority.Receipt{
		ReceptionSeal: "SELLO-12345",
		ProcessedAt:   time.Date(2026, 4, 1, 10, 5, 0, 0, time.UTC),
		Message:       "RECIBIDO",
	}}
	svc, node := newLiveTestService(t, db, signer, transmitter)
	tenantID := insertLiveTenant(t, db, node)
	doc := createSignedDocument(t, svc, tenantID)

	got, err := svc.Transmit(context.Background(), tenantID, doc.ID)
	if err != nil {
		t.Fatalf("transmit: %v", err)
	}
	if got.State != documentdomain.StateTransmittedOK {
		t.Fatalf("expected TRANSMITTED_OK, got %s", got.State)
	}
	if got.ReceptionSeal == nil || *got.ReceptionSeal != "SELLO-12345" {
		t.Fatalf("unexpected seal %v", got.ReceptionSeal)
	}
	if transmitter.gotToken != "live-token" {
		t.Fatalf("expected authority token on submit, got %q", transmitter.gotToken)
	}
}

func TestTransmitRejectionPersistsRejectedState(t *testing.T) {
	db := setupDocTestDB(t)
	signer := &stubSigner{loaded: true, envelope: "header.payload.signature"}
	transmitter := &stubTransmitter{err: &authority.RejectionError{
		Status:       "RECHAZADO",
		Observations: []string{"NIT del emisor no registrado", "resumen incompleto"},
	}}
	svc, node := newLiveTestService(t, db, signer, transmitter)
	tenantID := insertLiveTenant(t, db, node)
	doc := createSignedDocument(t, svc, tenantID)
	ctx := context.Background()

	_, err := svc.Transmit(ctx, tenantID, doc.ID)
	var rejection *authority.RejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("expected RejectionError, got %v", err)
	}
	if len(rejection.Observations) != 2 {
		t.Fatalf("observations lost: %v", rejection.Observations)
	}

	stored, err := svc.GetByID(ctx, tenantID, doc.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.State != documentdomain.StateRejected {
		t.Fatalf("expected REJECTED, got %s", stored.State)
	}
	if stored.TransmissionAttempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", stored.TransmissionAttempts)
	}
	if stored.AuthorityMessage == nil || *stored.AuthorityMessage != "NIT del emisor no registrado; resumen incompleto" {
		t.Fatalf("unexpected authority message %v", stored.AuthorityMessage)
	}
}

func TestTransmitTransportErrorWrapped(t *testing.T) {
	db := setupDocTestDB(t)
	signer := &stubSigner{loaded: true, envelope: "header.payload.signature"}
	transmitter := &stubTransmitter{err: errors.New("connection reset")}
	svc, node := newLiveTestService(t, db, signer, transmitter)
	tenantID := insertLiveTenant(t, db, node)
	doc := createSignedDocument(t, svc, tenantID)
	ctx := context.Background()

	_, err := svc.Transmit(ctx, tenantID, doc.ID)
	if err == nil || !strings.Contains(err.Error(), "transmission failed") {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}

	// Transport errors still count as an attempt and leave the document
	// retransmittable.
	stored, err := svc.GetByID(ctx, tenantID, doc.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.State != documentdomain.StateRejected {
		t.Fatalf("expected REJECTED, got %s", stored.State)
	}
	if !stored.Transmittable() {
		t.Fatal("rejected document must remain transmittable")
	}
}

func TestTransmitRetriesOnceOnRevokedToken(t *testing.T) {
	db := setupDocTestDB(t)
	signer := &stubSigner{loaded: true, envelope: "header.payload.signature"}
	transmitter := &stubTransmitter{
		errOnce: authority.ErrAuthFailed,
		receipt: &authority.Receipt{
			ReceptionSeal: "SELLO-67890",
			ProcessedAt:   time.Date(2026, 4, 1, 10, 5, 0, 0, time.UTC),
			Message:       "RECIBIDO",
		},
	}
	svc, node := newLiveTestService(t, db, signer, transmitter)
	tenantID := insertLiveTenant(t, db, node)
	doc := createSignedDocument(t, svc, tenantID)

	got, err := svc.Transmit(context.Background(), tenantID, doc.ID)
	if err != nil {
		t.Fatalf("transmit: %v", err)
	}
	if got.State != documentdomain.StateTransmittedOK {
		t.Fatalf("expected TRANSMITTED_OK, got %s", got.State)
	}
	if transmitter.calls != 2 {
		t.Fatalf("expected one retry after token eviction, got %d submits", transmitter.calls)
	}
}

func TestSignRequiresPendingState(t *testing.T) {
	db := setupDocTestDB(t)
	svc, node := newTestService(t, db)
	tenantID := insertDemoTenant(t, db, node)
	ctx := context.Background()

	doc, err := svc.Create(ctx, documentdomain.CreateRequest{
		TenantID:     tenantID,
		DocumentType: documentdomain.TypeFactura,
		Payload:      map[string]any{"emisor": map[string]any{"nombre": "Demo Issuer"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Sign(ctx, tenantID, doc.ID); err != nil {
		t.Fatalf("sign: %v", err)
	}

	// Re-signing a signed document is not a legal transition.
	if _, err := svc.Sign(ctx, tenantID, doc.ID); !errors.Is(err, documentdomain.ErrAlreadySigned) {
		t.Fatalf("re-sign of SIGNED: got %v", err)
	}

	if _, err := svc.Transmit(ctx, tenantID, doc.ID); err != nil {
		t.Fatalf("transmit: %v", err)
	}
	if _, err := svc.Sign(ctx, tenantID, doc.ID); !errors.Is(err, documentdomain.ErrAlreadySigned) {
		t.Fatalf("re-sign of TRANSMITTED_OK: got %v", err)
	}

	stored, err := svc.GetByID(ctx, tenantID, doc.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.State != documentdomain.StateTransmittedOK {
		t.Fatalf("transmitted state regressed to %s", stored.State)
	}
}

func TestSignLiveRequiresLoadedSigner(t *testing.T) {
	db := setupDocTestDB(t)
	signer := &stubSigner{loaded: false}
	svc, node := newLiveTestService(t, db, signer, &stubTransmitter{})
	tenantID := insertLiveTenant(t, db, node)
	ctx := context.Background()

	doc, err := svc.Create(ctx, documentdomain.CreateRequest{
		TenantID:     tenantID,
		DocumentType: documentdomain.TypeFactura,
		Payload:      map[string]any{"emisor": map[string]any{"nombre": "Live Issuer"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Sign(ctx, tenantID, doc.ID); !errors.Is(err, documentdomain.ErrSignerNotLoaded) {
		t.Fatalf("expected ErrSignerNotLoaded, got %v", err)
	}
}
