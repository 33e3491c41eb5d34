package position

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"forex-trading-agent/config"
	"forex-trading-agent/internal/broker"
	"forex-trading-agent/internal/circuit"
	"forex-trading-agent/internal/risk"
)

func testManager(mc *broker.MockClient, breaker *circuit.Breaker) *Manager {
	cfg := config.Default()
	tilt := risk.NewTiltTracker(cfg.RiskConfig.Tilt)
	return NewManager("acct-1", cfg.PositionConfig, cfg.TradingConfig, mc, tilt, breaker, nil, nil, zerolog.Nop())
}

func openBuy(t *testing.T, mc *broker.MockClient) int64 {
	t.Helper()
	result, err := mc.OpenOrder(context.Background(), broker.OrderRequest{
		Symbol:     "EURUSD",
		Direction:  broker.Buy,
		Lots:       0.10,
		StopLoss:   1.0830,
		TakeProfit: 1.0930,
	})
	if err != nil {
		t.Fatalf("OpenOrder failed: %v", err)
	}
	return result.Ticket
}

func stopOf(t *testing.T, mc *broker.MockClient, ticket int64) float64 {
	t.Helper()
	positions, err := mc.OpenPositions(context.Background())
	if err != nil {
		t.Fatalf("OpenPositions failed: %v", err)
	}
	for _, p := range positions {
		if p.Ticket == ticket {
			return p.StopLoss
		}
	}
	t.Fatalf("Ticket %d not found", ticket)
	return 0
}

// TestBreakevenOneWay tests the one-time move to entry plus the lock
func TestBreakevenOneWay(t *testing.T) {
	mc := broker.NewMockClient(25000)
	mc.SetPrice("EURUSD", 1.0850)
	m := testManager(mc, nil)
	ticket := openBuy(t, mc)
	now := time.Date(2025, 6, 4, 14, 0, 0, 0, time.UTC)

	// Up 8 pips or so: past the 6 pip trigger, short of the 12 pip trail
	mc.SetPrice("EURUSD", 1.0860)
	m.Tick(context.Background(), now)

	stop := stopOf(t, mc, ticket)
	if stop <= 1.0850 {
		t.Errorf("Breakeven should lift the stop above entry, got %f", stop)
	}
	if stop > 1.0853 {
		t.Errorf("Breakeven lock should be small, got %f", stop)
	}

	// Price retreats below the trigger: the stop must not move back
	mc.SetPrice("EURUSD", 1.0853)
	m.Tick(context.Background(), now.Add(5*time.Second))
	if got := stopOf(t, mc, ticket); got != stop {
		t.Errorf("Breakeven must be one-way, stop moved from %f to %f", stop, got)
	}
}

// TestTrailingRatchet tests that the trail only ever tightens
func TestTrailingRatchet(t *testing.T) {
	mc := broker.NewMockClient(25000)
	mc.SetPrice("EURUSD", 1.0850)
	m := testManager(mc, nil)
	ticket := openBuy(t, mc)
	now := time.Date(2025, 6, 4, 14, 0, 0, 0, time.UTC)

	// Up ~19 pips: trailing engages at bid minus the 5 pip step
	mc.SetPrice("EURUSD", 1.0870)
	m.Tick(context.Background(), now)
	trailed := stopOf(t, mc, ticket)
	if trailed <= 1.0855 {
		t.Fatalf("Trailing should have advanced the stop, got %f", trailed)
	}

	// Pullback: candidate is lower, the stop must hold
	mc.SetPrice("EURUSD", 1.0865)
	m.Tick(context.Background(), now.Add(5*time.Second))
	if got := stopOf(t, mc, ticket); got != trailed {
		t.Errorf("Trail must ratchet, stop moved from %f to %f", trailed, got)
	}

	// New high: the stop advances again
	mc.SetPrice("EURUSD", 1.0880)
	m.Tick(context.Background(), now.Add(10*time.Second))
	if got := stopOf(t, mc, ticket); got <= trailed {
		t.Errorf("Trail should advance on a new high, stayed at %f", got)
	}
}

// TestFridayFlatten tests that everything closes past the cutoff
func TestFridayFlatten(t *testing.T) {
	mc := broker.NewMockClient(25000)
	mc.SetPrice("EURUSD", 1.0850)
	mc.SetPrice("GBPUSD", 1.2700)
	m := testManager(mc, nil)
	openBuy(t, mc)
	if _, err := mc.OpenOrder(context.Background(), broker.OrderRequest{
		Symbol: "GBPUSD", Direction: broker.Sell, Lots: 0.05, StopLoss: 1.2730,
	}); err != nil {
		t.Fatalf("OpenOrder failed: %v", err)
	}

	// Friday 18:30 UTC, past the default 18:00 cutoff
	friday := time.Date(2025, 6, 6, 18, 30, 0, 0, time.UTC)
	m.Tick(context.Background(), friday)

	positions, _ := mc.OpenPositions(context.Background())
	if len(positions) != 0 {
		t.Errorf("Friday flatten should close every position, %d remain", len(positions))
	}
}

// TestDealSyncCountsOnce tests that a closed deal caught by the
// overlapping fetch window feeds the breaker exactly once
func TestDealSyncCountsOnce(t *testing.T) {
	mc := broker.NewMockClient(25000)
	mc.SetPrice("EURUSD", 1.0850)
	breaker := circuit.NewBreaker(5.0)
	m := testManager(mc, breaker)
	ticket := openBuy(t, mc)

	now := time.Date(2025, 6, 4, 14, 0, 0, 0, time.UTC)
	breaker.Observe(25000, now)

	// Drop ~20 pips and close at a loss
	mc.SetPrice("EURUSD", 1.0830)
	if err := mc.ClosePosition(context.Background(), ticket); err != nil {
		t.Fatalf("ClosePosition failed: %v", err)
	}

	m.Tick(context.Background(), now)
	first := breaker.DailyPnL()
	if first >= 0 {
		t.Fatalf("Closed loser should produce a negative daily PnL, got %f", first)
	}

	// The next ticks refetch the same deal through the overlap window
	m.Tick(context.Background(), now.Add(5*time.Second))
	m.Tick(context.Background(), now.Add(10*time.Second))
	if got := breaker.DailyPnL(); got != first {
		t.Errorf("Deal should count once, daily PnL moved from %f to %f", first, got)
	}
}

// TestBreakerFlatten tests the flatten when the daily breaker trips
func TestBreakerFlatten(t *testing.T) {
	mc := broker.NewMockClient(25000)
	mc.SetPrice("EURUSD", 1.0850)
	breaker := circuit.NewBreaker(5.0)
	m := testManager(mc, breaker)
	openBuy(t, mc)

	now := time.Date(2025, 6, 4, 14, 0, 0, 0, time.UTC)
	breaker.Observe(10000, now)
	breaker.RecordProfit(-600, now)

	m.Tick(context.Background(), now)
	positions, _ := mc.OpenPositions(context.Background())
	if len(positions) != 0 {
		t.Errorf("Breaker trip should flatten the account, %d remain", len(positions))
	}
}
