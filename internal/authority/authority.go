// Package authority models the tax-authority collaborators: authentication,
// document reception and the external signing service.
package authority

import (
	"context"
	"errors"
	"strings"
	"time"

	tenantdomain "github.com/facturasv/dte-engine/internal/tenant/domain"
)

// ErrAuthFailed signals that the authority rejected the API credentials.
var ErrAuthFailed = errors.New("authority_auth_failed")

// Credentials identify a tenant against the authority API.
type Credentials struct {
	Identity    string
	Secret      string
	Environment string
}

// Token is a short-lived authority access token.
type Token struct {
	Value      string
	Roles      []string
	ObtainedAt time.Time
}

// Receipt is the authority's acceptance response for a transmitted document.
type Receipt struct {
	ReceptionSeal string
	ProcessedAt   time.Time
	Message       string
	Observations  []string
}

// RejectionError carries the authority's structured observations when a
// document is rejected.
type RejectionError struct {
	Status       string
	Observations []string
}

func (e *RejectionError) Error() string {
	return "authority_rejected: " + e.Message()
}

// Message joins the observations into a single human-readable string.
func (e *RejectionError) Message() string {
	if len(e.Observations) == 0 {
		return e.Status
	}
	return strings.Join(e.Observations, "; ")
}

// SubmitMetadata describes the document being transmitted.
type SubmitMetadata struct {
	Environment    string
	DocumentType   string
	GenerationCode string
	Version        int
}

// Authenticator obtains access tokens from the authority.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (*Token, error)
}

// Transmitter submits signed envelopes to the authority reception API.
type Transmitter interface {
	Submit(ctx context.Context, token, envelope string, meta SubmitMetadata) (*Receipt, error)
}

// Signer is the external signing capability. Demo mode bypasses it entirely.
type Signer interface {
	IsLoaded(tenant *tenantdomain.Tenant) bool
	Sign(ctx context.Context, tenant *tenantdomain.Tenant, payload map[string]any) (string, error)
}
