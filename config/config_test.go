package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.TradingConfig.MinConfidence != 0.60 {
		t.Errorf("Should default the sell threshold to 0.60, got %.2f", cfg.TradingConfig.MinConfidence)
	}
	if cfg.TradingConfig.MaxOpenPositions != 3 {
		t.Errorf("Should default to 3 concurrent positions, got %d", cfg.TradingConfig.MaxOpenPositions)
	}
	if cfg.TradingConfig.ScanInterval() != 2*time.Minute {
		t.Errorf("Should scan every 2 minutes, got %s", cfg.TradingConfig.ScanInterval())
	}
	if cfg.RiskConfig.MaxDailyLossPct != 5.0 {
		t.Errorf("Should default the daily loss limit to 5%%, got %.1f", cfg.RiskConfig.MaxDailyLossPct)
	}
	if cfg.RiskConfig.Tilt.CooldownWindow() != 4*time.Hour {
		t.Errorf("Should default the SL cooldown window to 4h, got %s", cfg.RiskConfig.Tilt.CooldownWindow())
	}
	if cfg.PositionConfig.StaleTradeMinutes != 0 {
		t.Error("Should leave stale trade exits disabled by default")
	}

	major, ok := cfg.RiskConfig.Classes["major"]
	if !ok {
		t.Fatal("Should define the major instrument class")
	}
	if major.StopLossPips != 20 || major.TakeProfitPips != 80 {
		t.Errorf("Should default majors to 20/80 pips, got %.0f/%.0f", major.StopLossPips, major.TakeProfitPips)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Should fall back to defaults, got %v", err)
	}
	if cfg.TradingConfig.Timeframe != "M15" {
		t.Errorf("Should use default timeframe, got %s", cfg.TradingConfig.Timeframe)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRADING_SYMBOLS", "EURUSD,XAUUSD")
	t.Setenv("TRADING_MIN_CONFIDENCE", "0.70")
	t.Setenv("RISK_MAX_DAILY_LOSS", "3.5")
	t.Setenv("WEBHOOK_SECRET", "from-env")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Should load, got %v", err)
	}
	if len(cfg.TradingConfig.Symbols) != 2 || cfg.TradingConfig.Symbols[1] != "XAUUSD" {
		t.Errorf("Should override symbols from env, got %v", cfg.TradingConfig.Symbols)
	}
	if cfg.TradingConfig.MinConfidence != 0.70 {
		t.Errorf("Should override the threshold from env, got %.2f", cfg.TradingConfig.MinConfidence)
	}
	if cfg.RiskConfig.MaxDailyLossPct != 3.5 {
		t.Errorf("Should override the daily loss limit from env, got %.1f", cfg.RiskConfig.MaxDailyLossPct)
	}
	if cfg.ServerConfig.WebhookSecret != "from-env" {
		t.Errorf("Should override the webhook secret from env, got %q", cfg.ServerConfig.WebhookSecret)
	}
}

func TestSampleConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := GenerateSampleConfig(path); err != nil {
		t.Fatalf("Should write the sample config, got %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Should create the file, got %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Should load the sample back, got %v", err)
	}
	if !cfg.ServerConfig.Enabled {
		t.Error("Should enable the server in the sample")
	}
	if cfg.ServerConfig.WebhookSecret == "" {
		t.Error("Should seed a placeholder webhook secret")
	}
}
