package mode

import (
	"context"
	"errors"

	"github.com/facturasv/dte-engine/internal/authority"
	documentdomain "github.com/facturasv/dte-engine/internal/document/domain"
	tenantdomain "github.com/facturasv/dte-engine/internal/tenant/domain"
)

// LiveMode signs through the external signing service and transmits to the
// real authority API.
type LiveMode struct {
	signer      authority.Signer
	transmitter authority.Transmitter
	tokens      *authority.TokenCache
}

func NewLiveMode(signer authority.Signer, transmitter authority.Transmitter, tokens *authority.TokenCache) *LiveMode {
	return &LiveMode{signer: signer, transmitter: transmitter, tokens: tokens}
}

func (m *LiveMode) Sign(ctx context.Context, tenant *tenantdomain.Tenant, payload map[string]any) (string, error) {
	if !m.signer.IsLoaded(tenant) {
		return "", documentdomain.ErrSignerNotLoaded
	}
	return m.signer.Sign(ctx, tenant, payload)
}

func (m *LiveMode) Transmit(ctx context.Context, tenant *tenantdomain.Tenant, envelope string, meta authority.SubmitMetadata) (*authority.Receipt, error) {
	creds := authority.Credentials{
		Identity:    tenant.APIUser,
		Secret:      tenant.APIPassword,
		Environment: tenant.Environment,
	}
	token, err := m.tokens.GetToken(ctx, creds)
	if err != nil {
		return nil, err
	}

	receipt, err := m.transmitter.Submit(ctx, token, envelope, meta)
	if errors.Is(err, authority.ErrAuthFailed) {
		// The cached token was revoked server-side. Evict it and retry once
		// with a freshly obtained one.
		m.tokens.Clear(creds.Identity, creds.Environment)
		token, err = m.tokens.GetToken(ctx, creds)
		if err != nil {
			return nil, err
		}
		return m.transmitter.Submit(ctx, token, envelope, meta)
	}
	return receipt, err
}
