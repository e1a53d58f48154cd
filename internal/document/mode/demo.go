package mode

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/facturasv/dte-engine/internal/authority"
	"github.com/facturasv/dte-engine/internal/clock"
	tenantdomain "github.com/facturasv/dte-engine/internal/tenant/domain"
)

// DemoSealPrefix tags every simulated reception seal.
const DemoSealPrefix = "DEMO"

// DemoMode fabricates plausible authority responses without contacting any
// external system. Both operations are deterministic for a given payload so
// recurring flows behave the same on every run.
type DemoMode struct {
	clk clock.Clock
}

func NewDemoMode(clk clock.Clock) *DemoMode {
	return &DemoMode{clk: clk}
}

// Sign produces a well-formed but non-cryptographic JWS-shaped envelope:
// base64url(header).base64url(payload).base64url(digest).
func (m *DemoMode) Sign(_ context.Context, _ *tenantdomain.Tenant, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JOSE"}`))
	claims := base64.RawURLEncoding.EncodeToString(body)
	digest := sha256.Sum256([]byte(header + "." + claims))
	signature := base64.RawURLEncoding.EncodeToString(digest[:])

	return header + "." + claims + "." + signature, nil
}

// Transmit returns a simulated acceptance carrying a demo-tagged seal derived
// from the envelope contents.
func (m *DemoMode) Transmit(_ context.Context, _ *tenantdomain.Tenant, envelope string, meta authority.SubmitMetadata) (*authority.Receipt, error) {
	seed := meta.GenerationCode
	if seed == "" {
		seed = envelope
	}
	digest := sha256.Sum256([]byte(seed))
	seal := DemoSealPrefix + "-" + strings.ToUpper(hex.EncodeToString(digest[:10]))

	processedAt := time.Now().UTC()
	if m.clk != nil {
		processedAt = m.clk.Now()
	}

	return &authority.Receipt{
		ReceptionSeal: seal,
		ProcessedAt:   processedAt,
		Message:       "RECIBIDO (simulado, modo demo)",
	}, nil
}
