package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"forex-trading-agent/config"
	"forex-trading-agent/internal/broker"
	"forex-trading-agent/internal/market"
	"forex-trading-agent/internal/patterns"
)

func testSnapshot() market.Snapshot {
	base := time.Date(2025, 6, 4, 14, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, 10)
	for i := range candles {
		candles[i] = market.Candle{
			Time:  base.Add(time.Duration(i) * time.Minute),
			Open:  1.0850, High: 1.0855, Low: 1.0845, Close: 1.0852,
		}
	}
	return market.Snapshot{Symbol: "EURUSD", Timeframe: "M15", Candles: candles, Bid: 1.0851, Ask: 1.0853}
}

func TestAdviseDisabledWhenNotConfigured(t *testing.T) {
	client := NewClient(config.AIConfig{Enabled: false}, zerolog.Nop())
	_, ok, err := client.Advise(context.Background(), testSnapshot())
	if err != nil {
		t.Errorf("Should not error when disabled, got %v", err)
	}
	if ok {
		t.Error("Should not produce a candidate when disabled")
	}
}

func TestAdviseParsesClaudeVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Should call /v1/messages, got %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Error("Should send the API key header")
		}
		w.Write([]byte(`{"content":[{"text":"Here is my read: {\"action\":\"sell\",\"conviction\":0.8,\"reason\":\"lower highs\"}"}]}`))
	}))
	defer srv.Close()

	client := NewClient(config.AIConfig{
		Enabled:  true,
		Provider: "claude",
		APIKey:   "test-key",
		Model:    "test-model",
		BaseURL:  srv.URL,
	}, zerolog.Nop())

	cand, ok, err := client.Advise(context.Background(), testSnapshot())
	if err != nil {
		t.Fatalf("Should parse the verdict, got %v", err)
	}
	if !ok {
		t.Fatal("Should produce a candidate for a SELL verdict")
	}
	if cand.Type != patterns.AIAdvisory {
		t.Errorf("Should tag the candidate as advisory, got %s", cand.Type)
	}
	if cand.Direction != broker.Sell {
		t.Errorf("Should map sell to Sell, got %s", cand.Direction)
	}
	if cand.CandleQuality != 0.8 {
		t.Errorf("Should carry conviction as quality, got %.2f", cand.CandleQuality)
	}
	if cand.Symbol != "EURUSD" {
		t.Errorf("Should keep the snapshot symbol, got %s", cand.Symbol)
	}
}

func TestAdviseNoneVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[{"text":"{\"action\":\"NONE\",\"conviction\":0,\"reason\":\"choppy\"}"}]}`))
	}))
	defer srv.Close()

	client := NewClient(config.AIConfig{Enabled: true, Provider: "claude", APIKey: "k", BaseURL: srv.URL}, zerolog.Nop())
	_, ok, err := client.Advise(context.Background(), testSnapshot())
	if err != nil {
		t.Errorf("Should not error on a NONE verdict, got %v", err)
	}
	if ok {
		t.Error("Should not produce a candidate for NONE")
	}
}

func TestAdviseServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(config.AIConfig{Enabled: true, Provider: "openai", APIKey: "k", BaseURL: srv.URL}, zerolog.Nop())
	_, ok, err := client.Advise(context.Background(), testSnapshot())
	if err == nil {
		t.Error("Should surface the API error")
	}
	if ok {
		t.Error("Should not produce a candidate on error")
	}
}

func TestExtractJSON(t *testing.T) {
	got := extractJSON("```json\n{\"action\":\"BUY\"}\n```")
	if got != `{"action":"BUY"}` {
		t.Errorf("Should strip fences, got %q", got)
	}
	if extractJSON("no json here") != "no json here" {
		t.Error("Should pass through text without braces")
	}
}
