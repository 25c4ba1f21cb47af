// Package txworker resolves sighted bitcoin addresses against a public
// block explorer and derives per-transaction topology: direction, amounts,
// fan-in/fan-out and the mixer flag.
package txworker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/oniontracex/oniontracex/pkg/models"
)

const fetchTimeout = 20 * time.Second

// ExplorerClient talks to an Esplora-compatible HTTP API. All calls share
// one rate limiter so a large backlog cannot hammer the public endpoint.
type ExplorerClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewExplorerClient(baseURL string, perSecond float64) *ExplorerClient {
	return &ExplorerClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: fetchTimeout},
		limiter:    rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// AddressTransactions fetches the confirmed transaction history for one
// address. An unknown address returns an empty slice, not an error.
func (c *ExplorerClient) AddressTransactions(ctx context.Context, address string) ([]models.ExplorerTx, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/address/%s/txs", c.baseURL, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("explorer fetch %s: %w", address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer returned %d for %s", resp.StatusCode, address)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, err
	}
	var txs []models.ExplorerTx
	if err := json.Unmarshal(body, &txs); err != nil {
		return nil, fmt.Errorf("explorer response for %s: %w", address, err)
	}
	return txs, nil
}
