package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrSymbolNotFound      = errors.New("unknown market symbol")
	ErrUpstreamUnavailable = errors.New("market upstream unavailable")
)

type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Change24h float64   `json:"change_24h"`
	FetchedAt time.Time `json:"fetched_at"`
}

type Coin struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Client fetches market data from the upstream exchange gateway. The gateway
// hides the individual exchange API shapes behind one small JSON contract.
type Client interface {
	FetchQuote(ctx context.Context, symbol string) (*Quote, error)
	FetchCoins(ctx context.Context) ([]Coin, error)
}

type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClient) FetchQuote(ctx context.Context, symbol string) (*Quote, error) {
	var q Quote
	if err := c.getJSON(ctx, fmt.Sprintf("%s/api/quotes/%s", c.baseURL, strings.ToUpper(symbol)), &q); err != nil {
		return nil, err
	}
	q.Symbol = strings.ToUpper(q.Symbol)
	q.FetchedAt = time.Now().UTC()
	return &q, nil
}

func (c *HTTPClient) FetchCoins(ctx context.Context) ([]Coin, error) {
	var coins []Coin
	if err := c.getJSON(ctx, c.baseURL+"/api/coins", &coins); err != nil {
		return nil, err
	}
	return coins, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrSymbolNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: upstream status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode upstream response: %w", err)
	}
	return nil
}
