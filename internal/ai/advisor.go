// Package ai holds the optional advisory model integration. The advisor
// only ever proposes candidates; stops, targets and sizing stay with the
// risk engine, and an unreachable model just means rule-based trading.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"forex-trading-agent/config"
	"forex-trading-agent/internal/broker"
	"forex-trading-agent/internal/market"
	"forex-trading-agent/internal/patterns"
)

// Provider represents the LLM provider type
type Provider string

const (
	ProviderClaude Provider = "claude"
	ProviderOpenAI Provider = "openai"
)

// Advisor proposes at most one extra candidate per symbol per scan.
type Advisor interface {
	Advise(ctx context.Context, snap market.Snapshot) (patterns.Candidate, bool, error)
}

// Client is the HTTP advisory client.
type Client struct {
	cfg        config.AIConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewClient(cfg config.AIConfig, logger zerolog.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// advice is the JSON verdict the model is asked to produce.
type advice struct {
	Action     string  `json:"action"` // BUY, SELL or NONE
	Conviction float64 `json:"conviction"`
	Reason     string  `json:"reason"`
}

// Advise asks the model for a read on the recent tape. Failures are
// returned for debug logging but never block the rule-based path.
func (c *Client) Advise(ctx context.Context, snap market.Snapshot) (patterns.Candidate, bool, error) {
	if !c.cfg.Enabled || c.cfg.APIKey == "" {
		return patterns.Candidate{}, false, nil
	}

	prompt := buildPrompt(snap)
	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return patterns.Candidate{}, false, err
	}

	var a advice
	if err := json.Unmarshal([]byte(extractJSON(raw)), &a); err != nil {
		return patterns.Candidate{}, false, fmt.Errorf("unparseable advice: %w", err)
	}

	action := strings.ToUpper(strings.TrimSpace(a.Action))
	if action != "BUY" && action != "SELL" {
		return patterns.Candidate{}, false, nil
	}

	last := snap.Last()
	return patterns.Candidate{
		Symbol:        snap.Symbol,
		Direction:     broker.Direction(action),
		Type:          patterns.AIAdvisory,
		Entry:         last.Close,
		CandleQuality: clamp01(a.Conviction),
		Reason:        "advisory: " + a.Reason,
	}, true, nil
}

func buildPrompt(snap market.Snapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Symbol %s, timeframe %s. Last 20 bars (open,high,low,close):\n", snap.Symbol, snap.Timeframe)
	candles := snap.Candles
	if len(candles) > 20 {
		candles = candles[len(candles)-20:]
	}
	for _, c := range candles {
		fmt.Fprintf(&sb, "%.5f,%.5f,%.5f,%.5f\n", c.Open, c.High, c.Low, c.Close)
	}
	sb.WriteString(`Respond with only JSON: {"action":"BUY|SELL|NONE","conviction":0.0-1.0,"reason":"..."}`)
	return sb.String()
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	switch Provider(strings.ToLower(c.cfg.Provider)) {
	case ProviderOpenAI:
		return c.completeOpenAI(ctx, prompt)
	default:
		return c.completeClaude(ctx, prompt)
	}
}

func (c *Client) completeClaude(ctx context.Context, prompt string) (string, error) {
	baseURL := c.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	body := map[string]interface{}{
		"model":      c.cfg.Model,
		"max_tokens": 256,
		"messages":   []map[string]string{{"role": "user", "content": prompt}},
	}
	data, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/messages", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("advisory API status %d", resp.StatusCode)
	}

	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("empty advisory response")
	}
	return parsed.Content[0].Text, nil
}

func (c *Client) completeOpenAI(ctx context.Context, prompt string) (string, error) {
	baseURL := c.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	body := map[string]interface{}{
		"model":    c.cfg.Model,
		"messages": []map[string]string{{"role": "user", "content": prompt}},
	}
	data, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("advisory API status %d", resp.StatusCode)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty advisory response")
	}
	return parsed.Choices[0].Message.Content, nil
}

// extractJSON pulls the first JSON object out of a reply that may wrap
// it in prose or fences.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
