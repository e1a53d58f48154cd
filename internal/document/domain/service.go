package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateRequest struct {
	TenantID     snowflake.ID
	DocumentType string
	Payload      map[string]any
}

type ListRequest struct {
	State        string
	DocumentType string
	Limit        int
}

// Service owns the DTE lifecycle: create, sign, transmit, cancel.
//
// Sign and Transmit accept a zero tenant id to load the document globally;
// that path is reserved for internal callers such as the recurring-invoice
// scheduler.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Document, error)
	Sign(ctx context.Context, tenantID, documentID snowflake.ID) (*Document, error)
	Transmit(ctx context.Context, tenantID, documentID snowflake.ID) (*Document, error)
	Cancel(ctx context.Context, tenantID, documentID snowflake.ID, reason string) (*Document, error)
	GetByID(ctx context.Context, tenantID, documentID snowflake.ID) (*Document, error)
	List(ctx context.Context, tenantID snowflake.ID, req ListRequest) ([]Document, error)
}

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidType      = errors.New("invalid_document_type")
	ErrDocumentNotFound = errors.New("document_not_found")
	ErrAlreadyCancelled = errors.New("document_already_cancelled")
	ErrAlreadySigned    = errors.New("document_already_signed")
	ErrNotSigned        = errors.New("document_not_signed")
	ErrSignerNotLoaded  = errors.New("signer_not_loaded")
)
