// Package mode resolves the signing/transmission behavior for a tenant: live
// tenants talk to the real authority, demo tenants get deterministic
// simulated responses so automated flows work without credentials.
package mode

import (
	"context"

	"github.com/facturasv/dte-engine/internal/authority"
	tenantdomain "github.com/facturasv/dte-engine/internal/tenant/domain"
)

// Mode implements the external-facing half of the document lifecycle.
type Mode interface {
	Sign(ctx context.Context, tenant *tenantdomain.Tenant, payload map[string]any) (string, error)
	Transmit(ctx context.Context, tenant *tenantdomain.Tenant, envelope string, meta authority.SubmitMetadata) (*authority.Receipt, error)
}

// Resolver picks the mode for a tenant. Resolved once per operation, not at
// every branch point.
type Resolver struct {
	live Mode
	demo Mode
}

func NewResolver(live *LiveMode, demo *DemoMode) *Resolver {
	return &Resolver{live: live, demo: demo}
}

// ForTenant returns the demo mode for demo tenants and the live mode
// otherwise.
func (r *Resolver) ForTenant(tenant *tenantdomain.Tenant) Mode {
	if tenant != nil && tenant.Demo {
		return r.demo
	}
	return r.live
}
