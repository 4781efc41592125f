package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/verjil-oss/httpsink-bridge/internal/config"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/logger"
)

// token is a cached client-credentials grant.
type token struct {
	accessToken string
	expiresAt   time.Time
}

func (t token) validFor(buffer time.Duration) bool {
	return t.accessToken != "" && time.Now().Add(buffer).Before(t.expiresAt)
}

// oauth2Provider fetches and caches an OAuth2 client-credentials token,
// refreshing it shortly before expiry. A single in-flight refresh is
// shared across callers via singleflight; when TokenCacheBackend is
// "redis" a token refreshed by one task instance is stored in Redis and
// read back by the others before they refresh. There is no cross-process
// refresh lock: two instances that both miss the Redis cache each fetch
// their own token.
type oauth2Provider struct {
	cfg    config.OAuth2AuthConfig
	log    *logger.Logger
	client *http.Client

	mu     sync.RWMutex
	cached token

	group *singleflight.Group
	redis *redis.Client
}

func newOAuth2Provider(cfg config.OAuth2AuthConfig, log *logger.Logger) (*oauth2Provider, error) {
	p := &oauth2Provider{
		cfg:   cfg,
		log:   log,
		client: &http.Client{Timeout: 15 * time.Second},
		group: &singleflight.Group{},
	}

	if cfg.TokenCacheBackend == "redis" {
		p.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}

	return p, nil
}

func (p *oauth2Provider) Apply(ctx context.Context, req *http.Request) error {
	tok, err := p.getToken(ctx)
	if err != nil {
		return fmt.Errorf("credential: oauth2 token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}

func (p *oauth2Provider) getToken(ctx context.Context) (string, error) {
	buffer := time.Duration(p.cfg.BufferSeconds) * time.Second

	p.mu.RLock()
	if p.cached.validFor(buffer) {
		tok := p.cached.accessToken
		p.mu.RUnlock()
		return tok, nil
	}
	p.mu.RUnlock()

	v, err, _ := p.group.Do("refresh", func() (interface{}, error) {
		return p.refresh(ctx, buffer)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *oauth2Provider) refresh(ctx context.Context, buffer time.Duration) (string, error) {
	p.mu.RLock()
	if p.cached.validFor(buffer) {
		tok := p.cached.accessToken
		p.mu.RUnlock()
		return tok, nil
	}
	p.mu.RUnlock()

	if p.redis != nil {
		if tok, ok := p.tryDistributedLock(ctx); ok {
			return tok, nil
		}
	}

	correlationID := uuid.NewString()
	p.log.Debug("oauth2: refreshing client-credentials token", "correlation_id", correlationID)

	tok, expiresIn, err := p.fetchToken(ctx)
	if err != nil {
		if stale, ok := p.staleButUnexpired(); ok {
			p.log.Warn("oauth2: refresh failed, serving stale cached token", "correlation_id", correlationID, "error", err.Error())
			return stale, nil
		}
		return "", fmt.Errorf("refreshing token and no cached token remains: %w", err)
	}

	expiresAt := expiryFromTokenOrTTL(tok, expiresIn)

	p.mu.Lock()
	p.cached = token{accessToken: tok, expiresAt: expiresAt}
	p.mu.Unlock()

	if p.redis != nil {
		p.publishDistributed(ctx, tok, expiresAt)
	}

	return tok, nil
}

// staleButUnexpired returns the cached token if one exists and has not
// strictly expired, even past the configured refresh buffer — used
// only when a live refresh attempt has just failed.
func (p *oauth2Provider) staleButUnexpired() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cached.accessToken == "" {
		return "", false
	}
	if time.Now().Before(p.cached.expiresAt) {
		return p.cached.accessToken, true
	}
	return "", false
}

// tryDistributedLock attempts to read an already-refreshed token another
// task instance published to Redis. Returns ok=false on any miss or
// error, leaving the caller to perform its own refresh.
func (p *oauth2Provider) tryDistributedLock(ctx context.Context) (string, bool) {
	key := p.redisKey()
	val, err := p.redis.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	var cached struct {
		AccessToken string    `json:"access_token"`
		ExpiresAt   time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		return "", false
	}
	if time.Now().Add(time.Duration(p.cfg.BufferSeconds) * time.Second).After(cached.ExpiresAt) {
		return "", false
	}
	p.mu.Lock()
	p.cached = token{accessToken: cached.AccessToken, expiresAt: cached.ExpiresAt}
	p.mu.Unlock()
	return cached.AccessToken, true
}

func (p *oauth2Provider) publishDistributed(ctx context.Context, tok string, expiresAt time.Time) {
	payload, err := json.Marshal(struct {
		AccessToken string    `json:"access_token"`
		ExpiresAt   time.Time `json:"expires_at"`
	}{tok, expiresAt})
	if err != nil {
		return
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	if err := p.redis.Set(ctx, p.redisKey(), payload, ttl).Err(); err != nil {
		p.log.Warn("oauth2: failed to publish token to redis cache", "error", err.Error())
	}
}

func (p *oauth2Provider) redisKey() string {
	return "httpsink:oauth2-token:" + p.cfg.ClientID
}

func (p *oauth2Provider) fetchToken(ctx context.Context) (accessToken string, expiresIn int64, err error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)
	if p.cfg.Scope != "" {
		form.Set("scope", p.cfg.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", 0, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", 0, fmt.Errorf("decoding token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", 0, fmt.Errorf("token endpoint response missing access_token")
	}

	return body.AccessToken, body.ExpiresIn, nil
}

// expiryFromTokenOrTTL prefers the exp claim of a JWT access token (read
// opportunistically, unverified — this system is not the token's
// audience and has no key to verify it with) and falls back to the
// expires_in hint reported alongside the grant.
func expiryFromTokenOrTTL(accessToken string, expiresIn int64) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	if expiresIn > 0 {
		return time.Now().Add(time.Duration(expiresIn) * time.Second)
	}
	return time.Now().Add(time.Hour)
}
