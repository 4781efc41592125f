package credential

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verjil-oss/httpsink-bridge/internal/config"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/logger"
)

func newReq(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "https://example.com/ingest", nil)
	require.NoError(t, err)
	return req
}

func TestNew_None(t *testing.T) {
	p, err := New(config.AuthConfig{Type: "none"}, logger.New("info", "json"))
	require.NoError(t, err)
	req := newReq(t)
	require.NoError(t, p.Apply(context.Background(), req))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestNew_Basic(t *testing.T) {
	p, err := New(config.AuthConfig{Type: "basic", Basic: config.BasicAuthConfig{Username: "u", Password: "p"}}, logger.New("info", "json"))
	require.NoError(t, err)
	req := newReq(t)
	require.NoError(t, p.Apply(context.Background(), req))
	user, pass, ok := req.BasicAuth()
	assert.True(t, ok)
	assert.Equal(t, "u", user)
	assert.Equal(t, "p", pass)
}

func TestNew_Bearer(t *testing.T) {
	p, err := New(config.AuthConfig{Type: "bearer", Bearer: config.BearerAuthConfig{Token: "tok123"}}, logger.New("info", "json"))
	require.NoError(t, err)
	req := newReq(t)
	require.NoError(t, p.Apply(context.Background(), req))
	assert.Equal(t, "Bearer tok123", req.Header.Get("Authorization"))
}

func TestNew_APIKeyHeader(t *testing.T) {
	p, err := New(config.AuthConfig{Type: "apikey", APIKey: config.APIKeyAuthConfig{Name: "X-Api-Key", Value: "secret", Location: "header"}}, logger.New("info", "json"))
	require.NoError(t, err)
	req := newReq(t)
	require.NoError(t, p.Apply(context.Background(), req))
	assert.Equal(t, "secret", req.Header.Get("X-Api-Key"))
}

func TestNew_APIKeyQuery(t *testing.T) {
	p, err := New(config.AuthConfig{Type: "apikey", APIKey: config.APIKeyAuthConfig{Name: "api_key", Value: "secret", Location: "query"}}, logger.New("info", "json"))
	require.NoError(t, err)
	req := newReq(t)
	require.NoError(t, p.Apply(context.Background(), req))
	assert.Equal(t, "secret", req.URL.Query().Get("api_key"))
}

func TestNew_UnsupportedType(t *testing.T) {
	_, err := New(config.AuthConfig{Type: "hmac"}, logger.New("info", "json"))
	require.Error(t, err)
}

func TestOAuth2Provider_FetchesAndCaches(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"abc123","expires_in":3600}`))
	}))
	defer srv.Close()

	p, err := New(config.AuthConfig{
		Type: "oauth2",
		OAuth2: config.OAuth2AuthConfig{
			TokenURL:          srv.URL,
			ClientID:          "client",
			ClientSecret:      "secret",
			BufferSeconds:     30,
			TokenCacheBackend: "memory",
		},
	}, logger.New("info", "json"))
	require.NoError(t, err)

	req := newReq(t)
	require.NoError(t, p.Apply(context.Background(), req))
	assert.Equal(t, "Bearer abc123", req.Header.Get("Authorization"))

	req2 := newReq(t)
	require.NoError(t, p.Apply(context.Background(), req2))
	assert.Equal(t, 1, calls, "second Apply should reuse cached token")
}

func TestOAuth2Provider_RefreshesAfterExpiry(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok","expires_in":1}`))
	}))
	defer srv.Close()

	p, err := New(config.AuthConfig{
		Type: "oauth2",
		OAuth2: config.OAuth2AuthConfig{
			TokenURL:          srv.URL,
			ClientID:          "client",
			ClientSecret:      "secret",
			BufferSeconds:     0,
			TokenCacheBackend: "memory",
		},
	}, logger.New("info", "json"))
	require.NoError(t, err)

	require.NoError(t, p.Apply(context.Background(), newReq(t)))
	time.Sleep(1100 * time.Millisecond)
	require.NoError(t, p.Apply(context.Background(), newReq(t)))
	assert.Equal(t, 2, calls)
}

func TestOAuth2Provider_FallsBackToStaleTokenWhenRefreshFails(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"first","expires_in":30}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := New(config.AuthConfig{
		Type: "oauth2",
		OAuth2: config.OAuth2AuthConfig{
			TokenURL: srv.URL,
			ClientID: "client",
			ClientSecret: "secret",
			// BufferSeconds exceeds the token's remaining lifetime, so
			// the second Apply treats it as stale and tries to refresh.
			BufferSeconds:     60,
			TokenCacheBackend: "memory",
		},
	}, logger.New("info", "json"))
	require.NoError(t, err)

	req := newReq(t)
	require.NoError(t, p.Apply(context.Background(), req))
	assert.Equal(t, "Bearer first", req.Header.Get("Authorization"))

	req2 := newReq(t)
	require.NoError(t, p.Apply(context.Background(), req2))
	assert.Equal(t, "Bearer first", req2.Header.Get("Authorization"), "stale-but-unexpired token should still be served when refresh fails")
	assert.Equal(t, 2, calls)
}

func TestOAuth2Provider_TokenEndpointError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := New(config.AuthConfig{
		Type: "oauth2",
		OAuth2: config.OAuth2AuthConfig{
			TokenURL:          srv.URL,
			ClientID:          "client",
			ClientSecret:      "secret",
			TokenCacheBackend: "memory",
		},
	}, logger.New("info", "json"))
	require.NoError(t, err)

	err = p.Apply(context.Background(), newReq(t))
	assert.Error(t, err)
}
