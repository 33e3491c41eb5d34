package news

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"forex-trading-agent/config"
)

func testFeed() *Feed {
	cfg := config.Default().NewsConfig
	return NewFeed(cfg, zerolog.Nop())
}

// TestBlackoutWindow tests the pre and post event buffers
func TestBlackoutWindow(t *testing.T) {
	f := testFeed()
	eventAt := time.Date(2025, 6, 4, 12, 30, 0, 0, time.UTC)
	f.SetEvents([]Event{{Currency: "USD", Title: "Non-Farm Payrolls", Impact: "high", Time: eventAt}})

	if _, blocked := f.Blackout("EURUSD", eventAt.Add(-4*time.Minute)); !blocked {
		t.Error("Should block inside the 5 minute pre-event buffer")
	}
	if _, blocked := f.Blackout("EURUSD", eventAt.Add(9*time.Minute)); !blocked {
		t.Error("Should block inside the 10 minute post-event buffer")
	}
	if _, blocked := f.Blackout("EURUSD", eventAt.Add(-20*time.Minute)); blocked {
		t.Error("Should NOT block well before the event")
	}
	if _, blocked := f.Blackout("EURUSD", eventAt.Add(15*time.Minute)); blocked {
		t.Error("Should NOT block after the post-event buffer")
	}
}

// TestBlackoutCurrencyMatching tests that only affected pairs block
func TestBlackoutCurrencyMatching(t *testing.T) {
	f := testFeed()
	eventAt := time.Date(2025, 6, 4, 12, 30, 0, 0, time.UTC)
	f.SetEvents([]Event{{Currency: "GBP", Title: "BoE Rate Decision", Impact: "high", Time: eventAt}})

	if _, blocked := f.Blackout("GBPUSD", eventAt); !blocked {
		t.Error("GBP event should block GBPUSD")
	}
	if _, blocked := f.Blackout("EURGBP", eventAt); !blocked {
		t.Error("GBP event should block EURGBP via the quote leg")
	}
	if _, blocked := f.Blackout("EURUSD", eventAt); blocked {
		t.Error("GBP event should NOT block EURUSD")
	}
}
