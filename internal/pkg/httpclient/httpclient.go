// Package httpclient is the pooled HTTP executor the pipeline's EXECUTE
// state calls into. It owns exactly one *http.Client per endpoint, with
// connection pooling sized from the endpoint option group, and returns a
// uniform Response the pipeline can classify without touching net/http.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/verjil-oss/httpsink-bridge/internal/config"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/credential"
)

// Response is the sink's own view of an HTTP round trip: a status code
// and a body bounded by maxBodyBytes, never a live *http.Response the
// caller would need to remember to close.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// maxBodyBytes bounds how much of an endpoint's response body is read
// back into memory for response-topic / error-topic publication.
const maxBodyBytes = 1 << 20 // 1 MiB

// Client executes requests against a single configured endpoint.
type Client struct {
	cfg        config.EndpointConfig
	httpClient *http.Client
	cred       credential.Provider
}

// New builds a Client whose transport pooling knobs come from cfg.
func New(cfg config.EndpointConfig, cred credential.Provider) *Client {
	transport := &http.Transport{
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		MaxIdleConns:        cfg.MaxConnsTotal,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		cred: cred,
	}
}

// Do issues method against the configured endpoint URL (or urlOverride
// when non-empty, for per-record URL templating) with body as the
// request payload, applies the credential provider, and sets headers.
func (c *Client) Do(ctx context.Context, urlOverride string, body []byte, headers map[string]string) (*Response, error) {
	target := c.cfg.URL
	if urlOverride != "" {
		target = urlOverride
	}

	req, err := http.NewRequestWithContext(ctx, c.cfg.Method, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("httpclient: building request: %w", err)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.cred != nil {
		if err := c.cred.Apply(ctx, req); err != nil {
			return nil, fmt.Errorf("httpclient: applying credentials: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxBodyBytes)
	respBody, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("httpclient: reading response body: %w", err)
	}
	// drain anything past the cap so the connection can be reused.
	io.Copy(io.Discard, resp.Body)

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Header:     resp.Header,
	}, nil
}

// Close releases pooled idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
