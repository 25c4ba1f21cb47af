// Package tor provides the shared anonymized HTTP client every fetching
// component uses, plus a minimal control-port client for circuit rotation.
package tor

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

const (
	userAgent   = "Mozilla/5.0 (Windows NT 10.0; rv:109.0) Gecko/20100101 Firefox/115.0"
	maxBodySize = 10 << 20 // 10 MiB per page is plenty for HTML
)

// Client is a process-wide HTTP client routed through a SOCKS5 endpoint.
// Callers own the per-request timeout via context; the connect timeout is
// fixed at construction.
type Client struct {
	httpClient *http.Client
}

// NewClient builds the shared client against the given SOCKS5 address.
// Environment proxy overrides (HTTP_PROXY and friends) are deliberately
// not honored: every request must go through the configured endpoint.
func NewClient(socksAddr string, connectTimeout time.Duration) (*Client, error) {
	forward := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}
	dialer, err := proxy.SOCKS5("tcp", socksAddr, nil, forward)
	if err != nil {
		return nil, fmt.Errorf("socks5 dialer for %s: %w", socksAddr, err)
	}
	ctxDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 dialer for %s does not support contexts", socksAddr)
	}

	transport := &http.Transport{
		Proxy:               nil,
		DialContext:         ctxDialer.DialContext,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		// Onion services speak plain HTTP inside the circuit; TLS setup
		// still needs generous time when it does happen.
		TLSHandshakeTimeout: 20 * time.Second,
	}

	log.Printf("[Tor] HTTP client configured against socks5://%s", socksAddr)
	return &Client{httpClient: &http.Client{Transport: transport}}, nil
}

// FetchResult is one completed GET: status code plus the raw body bytes.
// Bodies are opaque; no charset decoding happens here.
type FetchResult struct {
	StatusCode int
	Body       []byte
}

// Fetch issues a GET with a total timeout and drains the body. Redirects
// are followed by the underlying client; the final status is reported.
func (c *Client) Fetch(ctx context.Context, url string, timeout time.Duration) (*FetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		// A truncated body is still a body; the status already told us
		// the site is up.
		return &FetchResult{StatusCode: resp.StatusCode, Body: body}, nil
	}
	return &FetchResult{StatusCode: resp.StatusCode, Body: body}, nil
}

// Do exposes the underlying client for callers that manage their own
// requests, such as the liveness prober measuring latency.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}
