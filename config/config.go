package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full bot configuration.
type Config struct {
	Trading    TradingConfig    `yaml:"trading"`
	Strategies StrategiesConfig `yaml:"strategies"`
	Risk       RiskConfig       `yaml:"risk"`
	Reactor    ReactorConfig    `yaml:"reactor"`
	API        APIConfig        `yaml:"api"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
}

// TradingConfig controls the trading loop and mode.
type TradingConfig struct {
	Mode            string  `yaml:"mode"` // paper | real
	InitialCapital  float64 `yaml:"initial_capital"`
	ScanIntervalSec int     `yaml:"scan_interval_seconds"`
	MaxBuysPerCycle int     `yaml:"max_buys_per_cycle"`
	MarketLimit     int     `yaml:"market_limit"`
	FeeRate         float64 `yaml:"fee_rate"`
	Spread          float64 `yaml:"spread"`
	Slippage        float64 `yaml:"slippage"`
}

// StrategiesConfig holds per-strategy thresholds and allocation weights.
type StrategiesConfig struct {
	Arbitrage ArbitrageConfig `yaml:"arbitrage"`
	Value     ValueConfig     `yaml:"value"`
	Whale     WhaleConfig     `yaml:"whale"`
}

type ArbitrageConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Weight       float64 `yaml:"weight"`
	MinProfitPct float64 `yaml:"min_profit_pct"`
	MaxProfitPct float64 `yaml:"max_profit_pct"`
	MinLiquidity float64 `yaml:"min_liquidity"`
}

type ValueConfig struct {
	Enabled              bool               `yaml:"enabled"`
	Weight               float64            `yaml:"weight"`
	MinEdge              float64            `yaml:"min_edge"`
	MinLiquidity         float64            `yaml:"min_liquidity"`
	MinHoursToResolution float64            `yaml:"min_hours_to_resolution"`
	CategoryBias         map[string]float64 `yaml:"category_bias"`
}

type WhaleConfig struct {
	Enabled         bool    `yaml:"enabled"`
	Weight          float64 `yaml:"weight"`
	MinNotional     float64 `yaml:"min_notional"`
	LookbackMinutes int     `yaml:"lookback_minutes"`
	MinNetVolume    float64 `yaml:"min_net_volume"`
	MinTrades       int     `yaml:"min_trades"`
}

// RiskConfig mirrors the position sizer policy. Percents are fractions.
type RiskConfig struct {
	MaxPositionPct  float64 `yaml:"max_position_pct"`
	MinSizeUSD      float64 `yaml:"min_size_usd"`
	MaxSizeUSD      float64 `yaml:"max_size_usd"`
	CashReservePct  float64 `yaml:"cash_reserve_pct"`
	CategoryCapPct  float64 `yaml:"category_cap_pct"`
	DrawdownWarnPct float64 `yaml:"drawdown_warn_pct"`
	DrawdownHaltPct float64 `yaml:"drawdown_halt_pct"`
	MinBufferPct    float64 `yaml:"min_buffer_pct"`
	MinBalanceUSD   float64 `yaml:"min_balance_usd"`
}

// ReactorConfig controls the real-time event reactor.
type ReactorConfig struct {
	Enabled               bool    `yaml:"enabled"`
	QueueSize             int     `yaml:"queue_size"`
	DropTriggerPct        float64 `yaml:"drop_trigger_pct"`
	InstantFollowNotional float64 `yaml:"instant_follow_notional"`
	ArbCheckIntervalSec   int     `yaml:"arb_check_interval_seconds"`
}

// APIConfig holds external API base URLs.
type APIConfig struct {
	GammaBase string `yaml:"gamma_base"`
}

// StorageConfig controls where the ledger persists.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, or ":memory:"
}

// LogConfig controls logging format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file and the .env file if present. Environment
// variables override matching YAML keys; real-mode credentials only ever
// come from the environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	return &cfg, nil
}

// ScanInterval returns the scan interval as a time.Duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Trading.ScanIntervalSec) * time.Second
}

// ArbCheckInterval returns the reactor arbitrage re-check interval.
func (c *Config) ArbCheckInterval() time.Duration {
	return time.Duration(c.Reactor.ArbCheckIntervalSec) * time.Second
}

// WhaleLookback returns the whale aggregation window.
func (c *Config) WhaleLookback() time.Duration {
	return time.Duration(c.Strategies.Whale.LookbackMinutes) * time.Minute
}

// RealCredentialsPresent reports whether the broker credentials needed
// for real-money mode are set in the environment.
func RealCredentialsPresent() bool {
	return os.Getenv("BROKER_API_KEY") != "" && os.Getenv("BROKER_API_SECRET") != ""
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Trading.Mode == "" {
		cfg.Trading.Mode = "paper"
	}
	if cfg.Trading.InitialCapital <= 0 {
		cfg.Trading.InitialCapital = 1000
	}
	if cfg.Trading.ScanIntervalSec <= 0 {
		cfg.Trading.ScanIntervalSec = 60
	}
	if cfg.Trading.MaxBuysPerCycle <= 0 {
		cfg.Trading.MaxBuysPerCycle = 5
	}
	if cfg.Trading.MarketLimit <= 0 {
		cfg.Trading.MarketLimit = 200
	}
	if cfg.Trading.FeeRate <= 0 {
		cfg.Trading.FeeRate = 0.02
	}
	if cfg.Trading.Spread <= 0 {
		cfg.Trading.Spread = 0.01
	}
	if cfg.Trading.Slippage <= 0 {
		cfg.Trading.Slippage = 0.005
	}
	if cfg.Strategies.Arbitrage.Weight <= 0 {
		cfg.Strategies.Arbitrage.Weight = 0.30
	}
	if cfg.Strategies.Value.Weight <= 0 {
		cfg.Strategies.Value.Weight = 0.45
	}
	if cfg.Strategies.Whale.Weight <= 0 {
		cfg.Strategies.Whale.Weight = 0.25
	}
	if cfg.Reactor.QueueSize <= 0 {
		cfg.Reactor.QueueSize = 256
	}
	if cfg.Reactor.ArbCheckIntervalSec <= 0 {
		cfg.Reactor.ArbCheckIntervalSec = 5
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "edgebot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
