package authority

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/facturasv/dte-engine/internal/cache"
	"github.com/facturasv/dte-engine/internal/clock"
	"github.com/facturasv/dte-engine/internal/logger"
	tenantdomain "github.com/facturasv/dte-engine/internal/tenant/domain"
)

type tokenKey struct {
	identity    string
	environment string
}

type cachedToken struct {
	value      string
	obtainedAt time.Time
}

// TokenCache is the two-tier authority token cache. The in-memory tier is
// process-local; the durable tier lives in tenant configuration storage and is
// a fallback, not a second source of truth.
type TokenCache struct {
	db      *gorm.DB
	log     *zap.Logger
	clk     clock.Clock
	genID   *snowflake.Node
	tenants tenantdomain.Repository
	auth    Authenticator
	ttl     time.Duration
	mem     *cache.TTLCache[tokenKey, cachedToken]
}

func NewTokenCache(
	db *gorm.DB,
	log *zap.Logger,
	clk clock.Clock,
	genID *snowflake.Node,
	tenants tenantdomain.Repository,
	auth Authenticator,
	ttl time.Duration,
) *TokenCache {
	if ttl <= 0 {
		ttl = 23 * time.Hour
	}
	return &TokenCache{
		db:      db,
		log:     log.Named("authority.tokens"),
		clk:     clk,
		genID:   genID,
		tenants: tenants,
		auth:    auth,
		ttl:     ttl,
		mem:     cache.NewTTLCache[tokenKey, cachedToken](),
	}
}

// GetToken returns a valid access token for the credentials, consulting the
// in-memory tier, then the durable tier, then the authority itself.
func (c *TokenCache) GetToken(ctx context.Context, creds Credentials) (string, error) {
	key := tokenKey{identity: creds.Identity, environment: creds.Environment}
	now := c.clk.Now()

	if cached, ok := c.mem.Get(key); ok && now.Sub(cached.obtainedAt) < c.ttl {
		return cached.value, nil
	}

	stored, err := c.tenants.FindToken(ctx, c.db, creds.Identity, creds.Environment)
	if err != nil {
		c.log.Warn("durable token lookup failed", zap.Error(err))
	} else if stored != nil && now.Before(stored.ExpiresAt) {
		c.mem.Set(key, cachedToken{value: stored.Token, obtainedAt: stored.ObtainedAt}, c.ttl)
		return stored.Token, nil
	}

	token, err := c.auth.Authenticate(ctx, creds)
	if err != nil {
		return "", err
	}

	obtained := token.ObtainedAt
	if obtained.IsZero() {
		obtained = now
	}
	c.mem.Set(key, cachedToken{value: token.Value, obtainedAt: obtained}, c.ttl)

	record := &tenantdomain.AuthorityToken{
		ID:          c.genID.Generate(),
		Identity:    creds.Identity,
		Environment: creds.Environment,
		Token:       token.Value,
		ObtainedAt:  obtained,
		ExpiresAt:   obtained.Add(c.ttl),
	}
	go func() {
		persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.tenants.SaveToken(persistCtx, c.db, record); err != nil {
			c.log.Warn("failed to persist authority token",
				zap.String("identity", logger.MaskCredential(creds.Identity)),
				zap.Error(err),
			)
		}
	}()

	return token.Value, nil
}

// Clear evicts a single cached token, forcing re-authentication on next use.
func (c *TokenCache) Clear(identity, environment string) {
	c.mem.Delete(tokenKey{identity: identity, environment: environment})
}

// ClearAll drops every in-memory token.
func (c *TokenCache) ClearAll() {
	c.mem.Purge()
}
