package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"forex-trading-agent/internal/market"
)

// Client talks to a terminal bridge over HTTP. The bridge exposes one
// trading account; each Client instance is bound to one account.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) AccountInfo(ctx context.Context) (*AccountInfo, error) {
	var info AccountInfo
	if err := c.get(ctx, "/api/account", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) Candles(ctx context.Context, symbol, timeframe string, count int) ([]market.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("timeframe", timeframe)
	params.Set("count", strconv.Itoa(count))

	var candles []market.Candle
	if err := c.get(ctx, "/api/candles", params, &candles); err != nil {
		return nil, err
	}
	return candles, nil
}

func (c *Client) Quote(ctx context.Context, symbol string) (*Quote, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var q Quote
	if err := c.get(ctx, "/api/quote", params, &q); err != nil {
		return nil, err
	}
	if q.Symbol == "" {
		q.Symbol = symbol
	}
	return &q, nil
}

func (c *Client) OpenPositions(ctx context.Context) ([]Position, error) {
	var positions []Position
	if err := c.get(ctx, "/api/positions", nil, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

func (c *Client) ClosedDeals(ctx context.Context, since time.Time) ([]Deal, error) {
	params := url.Values{}
	params.Set("since", since.UTC().Format(time.RFC3339))

	var deals []Deal
	if err := c.get(ctx, "/api/deals", params, &deals); err != nil {
		return nil, err
	}
	return deals, nil
}

func (c *Client) OpenOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	var result OrderResult
	if err := c.post(ctx, "/api/orders", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ModifyStops(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	body := map[string]interface{}{
		"ticket":      ticket,
		"stop_loss":   stopLoss,
		"take_profit": takeProfit,
	}
	return c.post(ctx, "/api/positions/modify", body, nil)
}

func (c *Client) ClosePosition(ctx context.Context, ticket int64) error {
	body := map[string]interface{}{"ticket": ticket}
	return c.post(ctx, "/api/positions/close", body, nil)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, data)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("error parsing bridge response: %w", err)
	}
	return nil
}
