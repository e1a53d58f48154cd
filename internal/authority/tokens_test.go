package authority

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	tenantdomain "github.com/facturasv/dte-engine/internal/tenant/domain"
	tenantrepo "github.com/facturasv/dte-engine/internal/tenant/repository"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

type stubAuthenticator struct {
	token *Token
	err   error
	calls int
}

func (a *stubAuthenticator) Authenticate(_ context.Context, _ Credentials) (*Token, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return a.token, nil
}

func setupTokenCache(t *testing.T, auth Authenticator) (*TokenCache, *gorm.DB, *testClock) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&tenantdomain.AuthorityToken{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	clk := &testClock{now: time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC)}
	cache := NewTokenCache(db, zap.NewNop(), clk, node, tenantrepo.Provide(node), auth, 23*time.Hour)
	return cache, db, clk
}

var testCreds = Credentials{Identity: "0614-000000-000-0", Secret: "secret", Environment: "00"}

func TestGetTokenAuthenticatesOnce(t *testing.T) {
	auth := &stubAuthenticator{token: &Token{Value: "tok-1"}}
	cache, _, _ := setupTokenCache(t, auth)
	ctx := context.Background()

	got, err := cache.GetToken(ctx, testCreds)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if got != "tok-1" {
		t.Fatalf("got %q", got)
	}

	// Second call is served from the in-memory tier.
	if _, err := cache.GetToken(ctx, testCreds); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if auth.calls != 1 {
		t.Fatalf("expected a single authentication, got %d", auth.calls)
	}
}

func TestGetTokenExpiryForcesReauthentication(t *testing.T) {
	auth := &stubAuthenticator{token: &Token{Value: "tok-1"}}
	cache, _, clk := setupTokenCache(t, auth)
	ctx := context.Background()

	if _, err := cache.GetToken(ctx, testCreds); err != nil {
		t.Fatalf("get token: %v", err)
	}

	// 23 hours later the cached token is stale.
	clk.now = clk.now.Add(23*time.Hour + time.Minute)
	auth.token = &Token{Value: "tok-2"}
	got, err := cache.GetToken(ctx, testCreds)
	if err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if got != "tok-2" {
		t.Fatalf("expected fresh token, got %q", got)
	}
	if auth.calls != 2 {
		t.Fatalf("expected re-authentication, got %d calls", auth.calls)
	}
}

func TestGetTokenPromotesDurableCopy(t *testing.T) {
	auth := &stubAuthenticator{err: ErrAuthFailed}
	cache, db, clk := setupTokenCache(t, auth)
	ctx := context.Background()

	// A valid durable row exists; the authenticator must never be hit.
	stored := tenantdomain.AuthorityToken{
		ID:          1,
		Identity:    testCreds.Identity,
		Environment: testCreds.Environment,
		Token:       "tok-durable",
		ObtainedAt:  clk.now.Add(-time.Hour),
		ExpiresAt:   clk.now.Add(22 * time.Hour),
	}
	if err := db.Create(&stored).Error; err != nil {
		t.Fatalf("seed durable token: %v", err)
	}

	got, err := cache.GetToken(ctx, testCreds)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if got != "tok-durable" {
		t.Fatalf("got %q", got)
	}
	if auth.calls != 0 {
		t.Fatalf("authenticator must not be consulted, got %d calls", auth.calls)
	}

	// The durable copy is promoted into memory and reused.
	if _, err := cache.GetToken(ctx, testCreds); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if auth.calls != 0 {
		t.Fatalf("expected memory hit, got %d calls", auth.calls)
	}
}

func TestGetTokenIgnoresExpiredDurableCopy(t *testing.T) {
	auth := &stubAuthenticator{token: &Token{Value: "tok-fresh"}}
	cache, db, clk := setupTokenCache(t, auth)
	ctx := context.Background()

	stored := tenantdomain.AuthorityToken{
		ID:          1,
		Identity:    testCreds.Identity,
		Environment: testCreds.Environment,
		Token:       "tok-stale",
		ObtainedAt:  clk.now.Add(-24 * time.Hour),
		ExpiresAt:   clk.now.Add(-time.Hour),
	}
	if err := db.Create(&stored).Error; err != nil {
		t.Fatalf("seed stale token: %v", err)
	}

	got, err := cache.GetToken(ctx, testCreds)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if got != "tok-fresh" {
		t.Fatalf("expected fresh token, got %q", got)
	}
	if auth.calls != 1 {
		t.Fatalf("expected one authentication, got %d", auth.calls)
	}
}

func TestGetTokenPropagatesAuthFailure(t *testing.T) {
	auth := &stubAuthenticator{err: ErrAuthFailed}
	cache, _, _ := setupTokenCache(t, auth)

	_, err := cache.GetToken(context.Background(), testCreds)
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestClearEvictsMemoryTier(t *testing.T) {
	auth := &stubAuthenticator{token: &Token{Value: "tok-fresh"}}
	cache, db, clk := setupTokenCache(t, auth)
	ctx := context.Background()

	// Prime the memory tier through durable promotion so no persistence
	// goroutine is in flight when the durable row is removed below.
	stored := tenantdomain.AuthorityToken{
		ID:          1,
		Identity:    testCreds.Identity,
		Environment: testCreds.Environment,
		Token:       "tok-durable",
		ObtainedAt:  clk.now.Add(-time.Hour),
		ExpiresAt:   clk.now.Add(22 * time.Hour),
	}
	if err := db.Create(&stored).Error; err != nil {
		t.Fatalf("seed durable token: %v", err)
	}
	if _, err := cache.GetToken(ctx, testCreds); err != nil {
		t.Fatalf("get token: %v", err)
	}
	if auth.calls != 0 {
		t.Fatalf("expected durable promotion, got %d calls", auth.calls)
	}

	if err := db.Exec(`DELETE FROM authority_tokens`).Error; err != nil {
		t.Fatalf("clear durable tier: %v", err)
	}
	cache.Clear(testCreds.Identity, testCreds.Environment)

	got, err := cache.GetToken(ctx, testCreds)
	if err != nil {
		t.Fatalf("get after clear: %v", err)
	}
	if got != "tok-fresh" {
		t.Fatalf("expected re-authenticated token, got %q", got)
	}
	if auth.calls != 1 {
		t.Fatalf("expected re-authentication after clear, got %d calls", auth.calls)
	}
}

func TestRejectionErrorMessage(t *testing.T) {
	err := &RejectionError{Status: "RECHAZADO", Observations: []string{"NIT inválido", "falta resumen"}}
	if err.Message() != "NIT inválido; falta resumen" {
		t.Fatalf("got %q", err.Message())
	}

	bare := &RejectionError{Status: "RECHAZADO"}
	if bare.Message() != "RECHAZADO" {
		t.Fatalf("got %q", bare.Message())
	}
}
