package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/facturasv/dte-engine/internal/config"
	"github.com/facturasv/dte-engine/internal/logger"
	"github.com/facturasv/dte-engine/internal/observability/tracing"
	tenantdomain "github.com/facturasv/dte-engine/internal/tenant/domain"
)

// HTTPAuthenticator authenticates against the authority security endpoint.
type HTTPAuthenticator struct {
	authURL string
	client  *http.Client
	log     *zap.Logger
}

func NewHTTPAuthenticator(cfg config.Config, log *zap.Logger) *HTTPAuthenticator {
	return &HTTPAuthenticator{
		authURL: cfg.Authority.AuthURL,
		client:  tracing.WrapHTTPClient(&http.Client{Timeout: cfg.Authority.Timeout}),
		log:     log.Named("authority.auth"),
	}
}

type authResponse struct {
	Status string `json:"status"`
	Body   struct {
		Token string   `json:"token"`
		Roles []string `json:"roles"`
	} `json:"body"`
}

func (a *HTTPAuthenticator) Authenticate(ctx context.Context, creds Credentials) (*Token, error) {
	form := url.Values{}
	form.Set("user", creds.Identity)
	form.Set("pwd", creds.Secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	var payload authResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed auth response", ErrAuthFailed)
	}
	if resp.StatusCode != http.StatusOK || !strings.EqualFold(payload.Status, "OK") || payload.Body.Token == "" {
		a.log.Warn("authority authentication rejected",
			zap.String("identity", logger.MaskCredential(creds.Identity)),
			zap.Int("status_code", resp.StatusCode),
		)
		return nil, ErrAuthFailed
	}

	return &Token{
		Value:      payload.Body.Token,
		Roles:      payload.Body.Roles,
		ObtainedAt: time.Now().UTC(),
	}, nil
}

// HTTPTransmitter submits signed envelopes to the authority reception API.
type HTTPTransmitter struct {
	receptionURL string
	client       *http.Client
	log          *zap.Logger
}

func NewHTTPTransmitter(cfg config.Config, log *zap.Logger) *HTTPTransmitter {
	return &HTTPTransmitter{
		receptionURL: cfg.Authority.ReceptionURL,
		client:       tracing.WrapHTTPClient(&http.Client{Timeout: cfg.Authority.Timeout}),
		log:          log.Named("authority.reception"),
	}
}

type receptionRequest struct {
	Ambiente         string `json:"ambiente"`
	IDEnvio          int    `json:"idEnvio"`
	Version          int    `json:"version"`
	TipoDTE          string `json:"tipoDte"`
	CodigoGeneracion string `json:"codigoGeneracion"`
	Documento        string `json:"documento"`
}

type receptionResponse struct {
	Estado          string   `json:"estado"`
	SelloRecibido   string   `json:"selloRecibido"`
	FhProcesamiento string   `json:"fhProcesamiento"`
	DescripcionMsg  string   `json:"descripcionMsg"`
	Observaciones   []string `json:"observaciones"`
}

func (t *HTTPTransmitter) Submit(ctx context.Context, token, envelope string, meta SubmitMetadata) (*Receipt, error) {
	body, err := json.Marshal(receptionRequest{
		Ambiente:         meta.Environment,
		IDEnvio:          1,
		Version:          meta.Version,
		TipoDTE:          meta.DocumentType,
		CodigoGeneracion: meta.GenerationCode,
		Documento:        envelope,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.receptionURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrAuthFailed
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var payload receptionResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("malformed reception response: %w", err)
	}

	if strings.EqualFold(payload.Estado, "RECHAZADO") {
		return nil, &RejectionError{
			Status:       payload.DescripcionMsg,
			Observations: payload.Observaciones,
		}
	}
	if !strings.EqualFold(payload.Estado, "PROCESADO") || payload.SelloRecibido == "" {
		return nil, fmt.Errorf("unexpected reception state %q", payload.Estado)
	}

	processedAt := time.Now().UTC()
	if ts, err := time.Parse("02/01/2006 15:04:05", payload.FhProcesamiento); err == nil {
		processedAt = ts.UTC()
	}

	return &Receipt{
		ReceptionSeal: payload.SelloRecibido,
		ProcessedAt:   processedAt,
		Message:       payload.DescripcionMsg,
		Observations:  payload.Observaciones,
	}, nil
}

// HTTPSigner delegates signing to the external signing service. The service
// owns the certificate material; the engine only holds a reference.
type HTTPSigner struct {
	signerURL string
	client    *http.Client
	log       *zap.Logger
}

func NewHTTPSigner(cfg config.Config, log *zap.Logger) *HTTPSigner {
	return &HTTPSigner{
		signerURL: cfg.Signer.URL,
		client:    tracing.WrapHTTPClient(&http.Client{Timeout: cfg.Signer.Timeout}),
		log:       log.Named("authority.signer"),
	}
}

func (s *HTTPSigner) IsLoaded(tenant *tenantdomain.Tenant) bool {
	return tenant != nil && tenant.HasCertificate()
}

type signRequest struct {
	NIT         string         `json:"nit"`
	Activo      bool           `json:"activo"`
	PasswordPri string         `json:"passwordPri"`
	DTEJSON     map[string]any `json:"dteJson"`
}

type signResponse struct {
	Status string          `json:"status"`
	Body   json.RawMessage `json:"body"`
}

func (s *HTTPSigner) Sign(ctx context.Context, tenant *tenantdomain.Tenant, payload map[string]any) (string, error) {
	cert := ""
	if tenant.CertificateRef != nil {
		cert = *tenant.CertificateRef
	}
	body, err := json.Marshal(signRequest{
		NIT:         tenant.NIT,
		Activo:      true,
		PasswordPri: cert,
		DTEJSON:     payload,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.signerURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var signed signResponse
	if err := json.Unmarshal(raw, &signed); err != nil {
		return "", fmt.Errorf("malformed signer response: %w", err)
	}
	if !strings.EqualFold(signed.Status, "OK") {
		return "", fmt.Errorf("signer returned status %q", signed.Status)
	}

	var envelope string
	if err := json.Unmarshal(signed.Body, &envelope); err != nil || envelope == "" {
		return "", fmt.Errorf("signer returned no envelope")
	}
	return envelope, nil
}
