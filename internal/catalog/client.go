package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client fetches the tradable symbol list from the exchange's futures
// exchangeInfo endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a client with a short bounded timeout; a slow upstream
// must degrade to cached data, never stall the dashboard.
func NewClient(baseURL string, timeout time.Duration, ratePerMin int) *Client {
	if ratePerMin <= 0 {
		ratePerMin = 10
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(ratePerMin)), 1),
	}
}

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol string `json:"symbol"`
		Status string `json:"status"`
	} `json:"symbols"`
}

// FetchSymbols returns the sorted list of actively trading USDT pairs. The
// call does not wait for rate-limiter headroom: when the budget is spent the
// caller should serve cached data instead.
func (c *Client) FetchSymbols(ctx context.Context) ([]string, error) {
	if !c.limiter.Allow() {
		return nil, fmt.Errorf("exchange fetch rate limit reached")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/fapi/v1/exchangeInfo", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "autobot-exinfo/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("exchange info: unexpected status %d", resp.StatusCode)
	}

	var body exchangeInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("exchange info: %w", err)
	}

	symbols := make([]string, 0, len(body.Symbols))
	for _, s := range body.Symbols {
		if s.Status == "TRADING" && strings.HasSuffix(s.Symbol, "USDT") {
			symbols = append(symbols, s.Symbol)
		}
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("exchange info: no tradable symbols in response")
	}
	sort.Strings(symbols)
	return symbols, nil
}
