// internal/common/http/client.go
package http

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"
)

// Client holds one verifying and one non-verifying transport so the TLS
// policy can follow the current runtime settings without rebuilding clients.
type Client struct {
	verifying *http.Client
	insecure  *http.Client
}

func NewClient(timeout time.Duration) *Client {
	insecureTransport := http.DefaultTransport.(*http.Transport).Clone()
	insecureTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // grid appliances ship self-signed certs

	return &Client{
		verifying: &http.Client{
			Timeout:   timeout,
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		},
		insecure: &http.Client{
			Timeout:   timeout,
			Transport: insecureTransport,
		},
	}
}

// NewClientWithTransport routes both policies through rt. Used by tests that
// count or fake requests.
func NewClientWithTransport(timeout time.Duration, rt http.RoundTripper) *Client {
	c := &http.Client{Timeout: timeout, Transport: rt}
	return &Client{verifying: c, insecure: c}
}

// HTTPClient returns the client matching the TLS policy.
func (c *Client) HTTPClient(verifyTLS bool) *http.Client {
	if verifyTLS {
		return c.verifying
	}
	return c.insecure
}

func (c *Client) Do(req *http.Request, verifyTLS bool) (*http.Response, error) {
	return c.HTTPClient(verifyTLS).Do(req)
}

func (c *Client) DoWithContext(ctx context.Context, req *http.Request, verifyTLS bool) (*http.Response, error) {
	return c.HTTPClient(verifyTLS).Do(req.WithContext(ctx))
}
