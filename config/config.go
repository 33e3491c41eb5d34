package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Accounts       []AccountConfig `json:"accounts"`
	TradingConfig  TradingConfig   `json:"trading"`
	RiskConfig     RiskConfig      `json:"risk"`
	PositionConfig PositionConfig  `json:"position"`
	NewsConfig     NewsConfig      `json:"news"`
	AIConfig       AIConfig        `json:"ai"`
	LoggingConfig  LoggingConfig   `json:"logging"`
	ServerConfig   ServerConfig    `json:"server"`
	DatabaseConfig DatabaseConfig  `json:"database"`
	RedisConfig    RedisConfig     `json:"redis"`
	VaultConfig    VaultConfig     `json:"vault"`
}

// AccountConfig describes one broker account the supervisor manages.
// Credentials may be left empty when Vault is enabled; they are then
// resolved from the Vault KV path at startup.
type AccountConfig struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BridgeURL string `json:"bridge_url"` // HTTP bridge to the trading terminal
	APIKey    string `json:"api_key"`
	MockMode  bool   `json:"mock_mode"` // Use simulated broker when no bridge is reachable
}

type TradingConfig struct {
	Symbols          []string `json:"symbols"`            // e.g. ["EURUSD", "GBPUSD"]
	Timeframe        string   `json:"timeframe"`          // e.g. "M15"
	CandleCount      int      `json:"candle_count"`       // Candles fetched per scan
	ScanIntervalSecs int      `json:"scan_interval_secs"` // Seconds between decision cycles
	MinConfidence    float64  `json:"min_confidence"`     // Sell-side execution threshold (0-1)
	BuyBias          float64  `json:"buy_bias"`           // Added to MinConfidence for buys
	MaxBuyThreshold  float64  `json:"max_buy_threshold"`  // Cap on the buy-side threshold
	MaxSpreadPips    float64  `json:"max_spread_pips"`    // Reject entries above this spread
	MaxOpenPositions int      `json:"max_open_positions"` // Concurrent positions per account
	FridayCutoffHour int      `json:"friday_cutoff_hour"` // UTC hour to flatten on Fridays
	DryRun           bool     `json:"dry_run"`            // Decide but never send orders
}

type RiskConfig struct {
	LotPerEquityUnit float64 `json:"lot_per_equity_unit"` // Lots granted per EquityUnit of equity
	EquityUnit       float64 `json:"equity_unit"`         // Equity step in account currency
	MaxRiskPercent   float64 `json:"max_risk_percent"`    // Max % of equity risked per trade
	MinLotSize       float64 `json:"min_lot_size"`
	FreeMarginFloor  float64 `json:"free_margin_floor"` // Reject entries below this free margin
	MaxDailyLossPct  float64 `json:"max_daily_loss_pct"` // Circuit breaker trip level

	// Instrument class tables keyed by class name ("major", "jpy_cross", "metal").
	Classes map[string]InstrumentClassConfig `json:"classes"`

	Tilt TiltConfig `json:"tilt"`
}

// InstrumentClassConfig holds the fixed stop distance, target distance and
// lot cap for one instrument class.
type InstrumentClassConfig struct {
	StopLossPips   float64 `json:"stop_loss_pips"`
	TakeProfitPips float64 `json:"take_profit_pips"`
	MaxLotSize     float64 `json:"max_lot_size"`
}

// TiltConfig controls the consecutive-loss size reduction and the
// stop-loss cooldown.
type TiltConfig struct {
	ReduceAfterLosses  int     `json:"reduce_after_losses"`  // Losses before first reduction
	ReduceFactor       float64 `json:"reduce_factor"`        // First reduction multiplier
	HalveAfterLosses   int     `json:"halve_after_losses"`   // Losses before second reduction
	QuarterAfterLosses int     `json:"quarter_after_losses"` // Losses before final reduction
	CooldownHits       int     `json:"cooldown_hits"`        // SL hits that trigger a cooldown
	CooldownWindowSecs int     `json:"cooldown_window_secs"` // Rolling window for counting hits
	CooldownSecs       int     `json:"cooldown_secs"`        // Cooldown length once triggered
}

type PositionConfig struct {
	PollIntervalSecs     int     `json:"poll_interval_secs"`
	BreakevenTriggerPips float64 `json:"breakeven_trigger_pips"`
	BreakevenLockPips    float64 `json:"breakeven_lock_pips"`
	TrailingStartPips    float64 `json:"trailing_start_pips"`
	TrailingStepPips     float64 `json:"trailing_step_pips"`
	StaleTradeMinutes    int     `json:"stale_trade_minutes"` // 0 disables the stale exit
}

type NewsConfig struct {
	Enabled        bool   `json:"enabled"`
	FeedURL        string `json:"feed_url"`
	PreBufferSecs  int    `json:"pre_buffer_secs"`  // Lockout before a high-impact event
	PostBufferSecs int    `json:"post_buffer_secs"` // Lockout after a high-impact event
	RefreshMinutes int    `json:"refresh_minutes"`
}

// AIConfig holds the optional advisory model configuration. The advisory
// path only ever produces candidates; it never sets stops or targets.
type AIConfig struct {
	Enabled  bool   `json:"enabled"`
	Provider string `json:"provider"` // "claude" or "openai"
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
	BaseURL  string `json:"base_url"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Output     string `json:"output"`      // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"` // Output as JSON
}

type ServerConfig struct {
	Enabled         bool   `json:"enabled"`
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	WebhookSecret   string `json:"webhook_secret"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

type DatabaseConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"` // postgres connection string
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path prefix for account credentials
}

func Load(path string) (*Config, error) {
	cfg, err := loadFromFile(path)
	if err != nil {
		cfg = Default()
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// Default returns the configuration the engine runs with when no config
// file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	t := &cfg.TradingConfig
	if len(t.Symbols) == 0 {
		t.Symbols = []string{"EURUSD", "GBPUSD", "USDJPY", "USDCHF"}
	}
	if t.Timeframe == "" {
		t.Timeframe = "M15"
	}
	if t.CandleCount == 0 {
		t.CandleCount = 100
	}
	if t.ScanIntervalSecs == 0 {
		t.ScanIntervalSecs = 120
	}
	if t.MinConfidence == 0 {
		t.MinConfidence = 0.60
	}
	if t.BuyBias == 0 {
		t.BuyBias = 0.05
	}
	if t.MaxBuyThreshold == 0 {
		t.MaxBuyThreshold = 0.65
	}
	if t.MaxSpreadPips == 0 {
		t.MaxSpreadPips = 2.0
	}
	if t.MaxOpenPositions == 0 {
		t.MaxOpenPositions = 3
	}
	if t.FridayCutoffHour == 0 {
		t.FridayCutoffHour = 18
	}

	r := &cfg.RiskConfig
	if r.LotPerEquityUnit == 0 {
		r.LotPerEquityUnit = 0.01
	}
	if r.EquityUnit == 0 {
		r.EquityUnit = 100
	}
	if r.MaxRiskPercent == 0 {
		r.MaxRiskPercent = 2.0
	}
	if r.MinLotSize == 0 {
		r.MinLotSize = 0.01
	}
	if r.FreeMarginFloor == 0 {
		r.FreeMarginFloor = 50
	}
	if r.MaxDailyLossPct == 0 {
		r.MaxDailyLossPct = 5.0
	}
	if r.Classes == nil {
		r.Classes = map[string]InstrumentClassConfig{
			"major":     {StopLossPips: 20, TakeProfitPips: 80, MaxLotSize: 0.10},
			"jpy_cross": {StopLossPips: 25, TakeProfitPips: 80, MaxLotSize: 0.10},
			"metal":     {StopLossPips: 150, TakeProfitPips: 400, MaxLotSize: 0.05},
		}
	}

	tilt := &r.Tilt
	if tilt.ReduceAfterLosses == 0 {
		tilt.ReduceAfterLosses = 3
	}
	if tilt.ReduceFactor == 0 {
		tilt.ReduceFactor = 0.75
	}
	if tilt.HalveAfterLosses == 0 {
		tilt.HalveAfterLosses = 5
	}
	if tilt.QuarterAfterLosses == 0 {
		tilt.QuarterAfterLosses = 8
	}
	if tilt.CooldownHits == 0 {
		tilt.CooldownHits = 2
	}
	if tilt.CooldownWindowSecs == 0 {
		tilt.CooldownWindowSecs = 14400
	}
	if tilt.CooldownSecs == 0 {
		tilt.CooldownSecs = 7200
	}

	p := &cfg.PositionConfig
	if p.PollIntervalSecs == 0 {
		p.PollIntervalSecs = 5
	}
	if p.BreakevenTriggerPips == 0 {
		p.BreakevenTriggerPips = 6
	}
	if p.BreakevenLockPips == 0 {
		p.BreakevenLockPips = 1
	}
	if p.TrailingStartPips == 0 {
		p.TrailingStartPips = 12
	}
	if p.TrailingStepPips == 0 {
		p.TrailingStepPips = 5
	}

	n := &cfg.NewsConfig
	if n.PreBufferSecs == 0 {
		n.PreBufferSecs = 300
	}
	if n.PostBufferSecs == 0 {
		n.PostBufferSecs = 600
	}
	if n.RefreshMinutes == 0 {
		n.RefreshMinutes = 30
	}

	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "info"
	}
	if cfg.LoggingConfig.Output == "" {
		cfg.LoggingConfig.Output = "stdout"
	}

	s := &cfg.ServerConfig
	if s.Port == 0 {
		s.Port = 8090
	}
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	if s.AllowedOrigins == "" {
		s.AllowedOrigins = "*"
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = 30
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = 30
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 10
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADING_SYMBOLS"); v != "" {
		cfg.TradingConfig.Symbols = splitCSV(v)
	}
	cfg.TradingConfig.Timeframe = getEnvOrDefault("TRADING_TIMEFRAME", cfg.TradingConfig.Timeframe)
	cfg.TradingConfig.ScanIntervalSecs = getEnvIntOrDefault("TRADING_SCAN_INTERVAL", cfg.TradingConfig.ScanIntervalSecs)
	cfg.TradingConfig.MinConfidence = getEnvFloatOrDefault("TRADING_MIN_CONFIDENCE", cfg.TradingConfig.MinConfidence)
	cfg.TradingConfig.DryRun = getEnvOrDefault("TRADING_DRY_RUN", boolString(cfg.TradingConfig.DryRun)) == "true"

	cfg.RiskConfig.MaxRiskPercent = getEnvFloatOrDefault("RISK_MAX_PERCENT", cfg.RiskConfig.MaxRiskPercent)
	cfg.RiskConfig.MaxDailyLossPct = getEnvFloatOrDefault("RISK_MAX_DAILY_LOSS", cfg.RiskConfig.MaxDailyLossPct)

	cfg.NewsConfig.Enabled = getEnvOrDefault("NEWS_ENABLED", boolString(cfg.NewsConfig.Enabled)) == "true"
	cfg.NewsConfig.FeedURL = getEnvOrDefault("NEWS_FEED_URL", cfg.NewsConfig.FeedURL)

	cfg.AIConfig.Enabled = getEnvOrDefault("AI_ENABLED", boolString(cfg.AIConfig.Enabled)) == "true"
	cfg.AIConfig.Provider = getEnvOrDefault("AI_PROVIDER", cfg.AIConfig.Provider)
	cfg.AIConfig.APIKey = getEnvOrDefault("AI_API_KEY", cfg.AIConfig.APIKey)
	cfg.AIConfig.Model = getEnvOrDefault("AI_MODEL", cfg.AIConfig.Model)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", boolString(cfg.LoggingConfig.JSONFormat)) == "true"

	cfg.ServerConfig.Enabled = getEnvOrDefault("SERVER_ENABLED", boolString(cfg.ServerConfig.Enabled)) == "true"
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)
	cfg.ServerConfig.WebhookSecret = getEnvOrDefault("WEBHOOK_SECRET", cfg.ServerConfig.WebhookSecret)

	cfg.DatabaseConfig.Enabled = getEnvOrDefault("DATABASE_ENABLED", boolString(cfg.DatabaseConfig.Enabled)) == "true"
	cfg.DatabaseConfig.URL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseConfig.URL)

	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", boolString(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", boolString(cfg.VaultConfig.Enabled)) == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

// Durations derived from the integer-second fields.

func (t TradingConfig) ScanInterval() time.Duration {
	return time.Duration(t.ScanIntervalSecs) * time.Second
}

func (p PositionConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalSecs) * time.Second
}

func (p PositionConfig) StaleAfter() time.Duration {
	return time.Duration(p.StaleTradeMinutes) * time.Minute
}

func (t TiltConfig) CooldownWindow() time.Duration {
	return time.Duration(t.CooldownWindowSecs) * time.Second
}

func (t TiltConfig) CooldownDuration() time.Duration {
	return time.Duration(t.CooldownSecs) * time.Second
}

func (n NewsConfig) PreBuffer() time.Duration {
	return time.Duration(n.PreBufferSecs) * time.Second
}

func (n NewsConfig) PostBuffer() time.Duration {
	return time.Duration(n.PostBufferSecs) * time.Second
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// GenerateSampleConfig creates a sample configuration file.
func GenerateSampleConfig(filename string) error {
	cfg := Default()
	cfg.Accounts = []AccountConfig{
		{
			ID:        "prop-1",
			Name:      "Prop Challenge",
			BridgeURL: "http://localhost:5001",
			APIKey:    "your_bridge_key_here",
			MockMode:  true,
		},
	}
	cfg.ServerConfig.Enabled = true
	cfg.ServerConfig.WebhookSecret = "change_me"

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
