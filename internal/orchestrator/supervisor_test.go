package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"forex-trading-agent/config"
	"forex-trading-agent/internal/broker"
	"forex-trading-agent/internal/events"
	"forex-trading-agent/internal/market"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Accounts = []config.AccountConfig{
		{ID: "acct-1", Name: "Alpha", MockMode: true},
		{ID: "acct-2", Name: "Bravo", MockMode: true},
	}
	cfg.TradingConfig.Symbols = []string{"EURUSD"}
	cfg.TradingConfig.DryRun = true
	return cfg
}

func newTestSupervisor(t *testing.T, cfg *config.Config) (*Supervisor, map[string]*broker.MockClient) {
	t.Helper()
	venues := make(map[string]*broker.MockClient)
	factory := func(acct config.AccountConfig) broker.Broker {
		mc := broker.NewMockClient(10000)
		venues[acct.ID] = mc
		return mc
	}
	return NewSupervisor(cfg, factory, nil, nil, events.NewBus(), nil, zerolog.Nop()), venues
}

func TestSupervisorStartStop(t *testing.T) {
	sup, _ := newTestSupervisor(t, testConfig())

	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Should start, got %v", err)
	}
	if !sup.IsRunning() {
		t.Error("Should report running after Start")
	}
	if err := sup.Start(context.Background()); err == nil {
		t.Error("Should refuse a second Start while running")
	}

	sup.Stop()
	if sup.IsRunning() {
		t.Error("Should report stopped after Stop")
	}
	// Idempotent.
	sup.Stop()
}

func TestSupervisorNoAccounts(t *testing.T) {
	cfg := testConfig()
	cfg.Accounts = nil
	sup, _ := newTestSupervisor(t, cfg)
	if err := sup.Start(context.Background()); err == nil {
		t.Error("Should refuse to start with no accounts")
	}
}

func TestSupervisorStatusPerAccount(t *testing.T) {
	sup, _ := newTestSupervisor(t, testConfig())
	statuses := sup.Status(context.Background())
	if len(statuses) != 2 {
		t.Fatalf("Should report both accounts, got %d", len(statuses))
	}
	if statuses[0].AccountID != "acct-1" || statuses[1].AccountID != "acct-2" {
		t.Error("Should report accounts in configuration order")
	}
	for _, st := range statuses {
		if !st.Healthy {
			t.Errorf("Should start healthy, account %s is not", st.AccountID)
		}
		if st.Balance != 10000 {
			t.Errorf("Should report the venue balance, got %.2f", st.Balance)
		}
	}
}

func TestScanCycleRecordsCycleTime(t *testing.T) {
	sup, _ := newTestSupervisor(t, testConfig())
	engine := sup.Engine("acct-1")

	engine.ScanCycle(context.Background())

	st := engine.Status(context.Background())
	if st.LastCycle.IsZero() {
		t.Error("Should record the cycle time after a scan")
	}
	if !st.Healthy {
		t.Errorf("Should stay healthy on a clean cycle, got error %q", st.LastError)
	}
}

type faultyCandleVenue struct {
	*broker.MockClient
	fail bool
}

func (v *faultyCandleVenue) Candles(ctx context.Context, symbol, timeframe string, count int) ([]market.Candle, error) {
	if v.fail {
		return nil, broker.ErrUnavailable
	}
	return v.MockClient.Candles(ctx, symbol, timeframe, count)
}

// TestScanCycleKeepsVenueError tests that a symbol-level broker failure
// stays on the account status until a clean cycle
func TestScanCycleKeepsVenueError(t *testing.T) {
	cfg := testConfig()
	cfg.Accounts = cfg.Accounts[:1]
	venue := &faultyCandleVenue{MockClient: broker.NewMockClient(10000), fail: true}
	factory := func(acct config.AccountConfig) broker.Broker { return venue }
	sup := NewSupervisor(cfg, factory, nil, nil, events.NewBus(), nil, zerolog.Nop())
	engine := sup.Engine("acct-1")

	// Wednesday mid New York session, nothing gated
	wednesday := time.Date(2025, 6, 4, 14, 0, 0, 0, time.UTC)
	engine.scanCycleAt(context.Background(), wednesday)

	st := engine.Status(context.Background())
	if st.LastError == "" {
		t.Error("Should keep the venue error on the status")
	}
	if st.Healthy {
		t.Error("Should report unhealthy after a failed symbol scan")
	}

	venue.fail = false
	engine.scanCycleAt(context.Background(), wednesday)
	st = engine.Status(context.Background())
	if st.LastError != "" {
		t.Errorf("Should clear the error after a clean cycle, got %q", st.LastError)
	}
	if !st.Healthy {
		t.Error("Should report healthy after a clean cycle")
	}
}

func TestPausedEngineSkipsScan(t *testing.T) {
	sup, _ := newTestSupervisor(t, testConfig())
	engine := sup.Engine("acct-1")
	engine.SetPaused(true)

	engine.ScanCycle(context.Background())

	st := engine.Status(context.Background())
	if !st.LastCycle.IsZero() {
		t.Error("Should not run a cycle while paused")
	}
	if err := engine.ForceScan(context.Background(), "EURUSD", false); err == nil {
		t.Error("Should refuse a forced scan while paused")
	}
}

func TestCloseSymbolFlattensAllAccounts(t *testing.T) {
	sup, venues := newTestSupervisor(t, testConfig())
	ctx := context.Background()

	for _, mc := range venues {
		_, err := mc.OpenOrder(ctx, broker.OrderRequest{
			Symbol: "EURUSD", Direction: broker.Buy, Lots: 0.05,
		})
		if err != nil {
			t.Fatalf("Should open the seed position, got %v", err)
		}
	}

	closed := sup.CloseSymbol(ctx, "EURUSD")
	for id, n := range closed {
		if n != 1 {
			t.Errorf("Should close one position on %s, closed %d", id, n)
		}
	}
	for id, mc := range venues {
		open, _ := mc.OpenPositions(ctx)
		if len(open) != 0 {
			t.Errorf("Should leave %s flat, %d still open", id, len(open))
		}
	}
}

func TestForceScanAllAccounts(t *testing.T) {
	sup, _ := newTestSupervisor(t, testConfig())
	results := sup.ForceScan(context.Background(), "EURUSD", false)
	if len(results) != 2 {
		t.Fatalf("Should report both accounts, got %d", len(results))
	}
	for id, res := range results {
		if res != "ok" {
			t.Errorf("Should scan cleanly on %s, got %q", id, res)
		}
	}
}

func TestRiskSummaryFields(t *testing.T) {
	sup, _ := newTestSupervisor(t, testConfig())
	summary := sup.Engine("acct-2").RiskSummary()
	if summary["account_id"] != "acct-2" {
		t.Error("Should identify the account")
	}
	if summary["size_factor"] != 1.0 {
		t.Errorf("Should start at full size, got %v", summary["size_factor"])
	}
	if summary["breaker_tripped"] != false {
		t.Error("Should start with the breaker closed")
	}
}

func TestEngineRunStopsOnCancel(t *testing.T) {
	sup, _ := newTestSupervisor(t, testConfig())
	engine := sup.Engine("acct-1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Should stop promptly after cancel")
	}
}
