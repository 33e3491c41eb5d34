package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"forex-trading-agent/config"
	"forex-trading-agent/internal/broker"
	"forex-trading-agent/internal/events"
	"forex-trading-agent/internal/orchestrator"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Accounts = []config.AccountConfig{{ID: "acct-1", Name: "Alpha", MockMode: true}}
	cfg.TradingConfig.Symbols = []string{"EURUSD"}
	cfg.TradingConfig.DryRun = true
	cfg.ServerConfig.WebhookSecret = "hunter2"

	bus := events.NewBus()
	factory := func(acct config.AccountConfig) broker.Broker {
		return broker.NewMockClient(10000)
	}
	sup := orchestrator.NewSupervisor(cfg, factory, nil, nil, bus, nil, zerolog.Nop())
	return NewServer(cfg.ServerConfig, sup, nil, bus, zerolog.Nop())
}

func postWebhook(t *testing.T, s *Server, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Should return 200, got %d", w.Code)
	}
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	s := newTestServer(t)
	w := postWebhook(t, s, map[string]interface{}{
		"secret": "wrong", "symbol": "EURUSD", "action": "ANALYZE",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Should reject a bad secret with 401, got %d", w.Code)
	}
}

func TestWebhookRejectsMissingFields(t *testing.T) {
	s := newTestServer(t)
	w := postWebhook(t, s, map[string]interface{}{"secret": "hunter2"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Should reject a payload without symbol and action, got %d", w.Code)
	}
}

func TestWebhookAnalyze(t *testing.T) {
	s := newTestServer(t)
	w := postWebhook(t, s, map[string]interface{}{
		"secret": "hunter2", "symbol": "eurusd", "action": "ANALYZE",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Should accept an analyze trigger, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Symbol   string            `json:"symbol"`
		Accounts map[string]string `json:"accounts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Should return JSON, got %v", err)
	}
	if resp.Symbol != "EURUSD" {
		t.Errorf("Should uppercase the symbol, got %s", resp.Symbol)
	}
	if resp.Accounts["acct-1"] != "ok" {
		t.Errorf("Should scan the account cleanly, got %q", resp.Accounts["acct-1"])
	}
}

func TestWebhookUnknownAction(t *testing.T) {
	s := newTestServer(t)
	w := postWebhook(t, s, map[string]interface{}{
		"secret": "hunter2", "symbol": "EURUSD", "action": "DELETE_EVERYTHING",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Should reject an unknown action, got %d", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Should return 200, got %d", w.Code)
	}
	var resp struct {
		Accounts []orchestrator.Status `json:"accounts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Should return JSON, got %v", err)
	}
	if len(resp.Accounts) != 1 || resp.Accounts[0].AccountID != "acct-1" {
		t.Errorf("Should report the configured account, got %+v", resp.Accounts)
	}
}

func TestAccountRiskUnknownAccount(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/accounts/nobody/risk", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Should 404 an unknown account, got %d", w.Code)
	}
}

func TestAccountTradesWithoutJournal(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/accounts/acct-1/trades", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Should report the journal disabled, got %d", w.Code)
	}
}

func TestWebSocketStreamsBusEvents(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Should connect to the stream, got %v", err)
	}
	defer conn.Close()

	// Give the hub a moment to register the client.
	time.Sleep(50 * time.Millisecond)
	s.bus.PublishSignal("acct-1", "EURUSD", "WEDGE_REVERSAL", "SELL", 0.72)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Should receive the published event, got %v", err)
	}
	var event events.Event
	if err := json.Unmarshal(message, &event); err != nil {
		t.Fatalf("Should stream JSON events, got %v", err)
	}
	if event.Type != events.EventSignalGenerated {
		t.Errorf("Should stream the signal event, got %s", event.Type)
	}
}
