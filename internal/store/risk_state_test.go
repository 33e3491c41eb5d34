package store

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"forex-trading-agent/config"
)

// The store must keep working when Redis is unreachable, so the tests
// run against a dead address and exercise the fallback path.
func deadStore() *Store {
	return NewStore(config.RedisConfig{Address: "127.0.0.1:1"}, zerolog.Nop())
}

func TestSaveFallsBackWithoutRedis(t *testing.T) {
	s := deadStore()
	defer s.Close()

	state := RiskState{AccountID: "acct-1", ConsecutiveLosses: 4, SizeFactor: 0.5, DailyPnL: -120}
	if err := s.SaveRiskState(context.Background(), state); err != nil {
		t.Fatalf("Should not error when redis is down, got %v", err)
	}
	if s.Available() {
		t.Error("Should report redis unavailable")
	}

	loaded, found, err := s.LoadRiskState(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("Should load from the fallback cache, got %v", err)
	}
	if !found {
		t.Fatal("Should find the saved state")
	}
	if loaded.ConsecutiveLosses != 4 || loaded.SizeFactor != 0.5 {
		t.Errorf("Should round-trip the state, got %+v", loaded)
	}
	if loaded.SavedAt.IsZero() {
		t.Error("Should stamp SavedAt on save")
	}
}

func TestLoadUnknownAccount(t *testing.T) {
	s := deadStore()
	defer s.Close()

	_, found, err := s.LoadRiskState(context.Background(), "nobody")
	if found {
		t.Error("Should not find an account that was never saved")
	}
	if err == nil {
		t.Error("Should surface the redis error when the fallback also misses")
	}
}
