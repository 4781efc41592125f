// Package credential materializes the auth option group (SPEC_FULL §3/§4.2)
// into something that can stamp an outgoing *http.Request: a static header
// or query parameter for none/basic/bearer/apikey, or a cached, refreshed
// bearer token for oauth2.
package credential

import (
	"context"
	"fmt"
	"net/http"

	"github.com/verjil-oss/httpsink-bridge/internal/config"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/logger"
)

// Provider stamps credentials onto an outbound request. Implementations
// must be safe for concurrent use: the HTTP client calls Apply on every
// attempt (retries included), potentially from many goroutines.
type Provider interface {
	Apply(ctx context.Context, req *http.Request) error
}

// New builds the Provider named by cfg.Type. It never returns a nil
// Provider on a nil error.
func New(cfg config.AuthConfig, log *logger.Logger) (Provider, error) {
	switch cfg.Type {
	case "", "none":
		return noneProvider{}, nil
	case "basic":
		return basicProvider{username: cfg.Basic.Username, password: cfg.Basic.Password}, nil
	case "bearer":
		return bearerProvider{token: cfg.Bearer.Token}, nil
	case "apikey":
		return apiKeyProvider{name: cfg.APIKey.Name, value: cfg.APIKey.Value, location: cfg.APIKey.Location}, nil
	case "oauth2":
		return newOAuth2Provider(cfg.OAuth2, log)
	default:
		return nil, fmt.Errorf("credential: unsupported auth type %q", cfg.Type)
	}
}

type noneProvider struct{}

func (noneProvider) Apply(_ context.Context, _ *http.Request) error { return nil }

type basicProvider struct {
	username string
	password string
}

func (p basicProvider) Apply(_ context.Context, req *http.Request) error {
	req.SetBasicAuth(p.username, p.password)
	return nil
}

type bearerProvider struct {
	token string
}

func (p bearerProvider) Apply(_ context.Context, req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+p.token)
	return nil
}

type apiKeyProvider struct {
	name     string
	value    string
	location string
}

func (p apiKeyProvider) Apply(_ context.Context, req *http.Request) error {
	switch p.location {
	case "query":
		q := req.URL.Query()
		q.Set(p.name, p.value)
		req.URL.RawQuery = q.Encode()
	default:
		req.Header.Set(p.name, p.value)
	}
	return nil
}
