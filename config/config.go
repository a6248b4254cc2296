// Package config loads application configuration from an optional
// JSON file with environment variable overrides on top. Defaults make
// the binary runnable with no file present.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerConfig   ServerConfig   `json:"server"`
	LoggingConfig  LoggingConfig  `json:"logging"`
	BinanceConfig  BinanceConfig  `json:"binance"`
	DatabaseConfig DatabaseConfig `json:"database"`
	RedisConfig    RedisConfig    `json:"redis"`
	SimConfig      SimConfig      `json:"sim"`
	RiskConfig     RiskConfig     `json:"risk"`
	TradingConfig  TradingConfig  `json:"trading"`
	FeedConfig     FeedConfig     `json:"feed"`
	Bots           []BotConfig    `json:"bots"`
}

type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	ProductionMode bool     `json:"production_mode"`
	AllowOrigins   []string `json:"allow_origins"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Output     string `json:"output"`      // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"` // JSON lines vs console format
}

type BinanceConfig struct {
	BaseURL           string `json:"base_url"`
	WSBaseURL         string `json:"ws_base_url"`
	TestNet           bool   `json:"testnet"`
	MockMode          bool   `json:"mock_mode"` // simulated feed instead of the venue
	RequestsPerMinute int    `json:"requests_per_minute"`
}

type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

type RedisConfig struct {
	Enabled  bool          `json:"enabled"`
	Addr     string        `json:"addr"`
	Password string        `json:"password"`
	DB       int           `json:"db"`
	TTL      time.Duration `json:"ttl"`
}

// SimConfig parameterizes the fill simulator.
type SimConfig struct {
	TakerFeeRate           float64 `json:"taker_fee_rate"`
	MakerFeeRate           float64 `json:"maker_fee_rate"`
	MarketSlippageBps      float64 `json:"market_slippage_bps"`
	PartialFillProbability float64 `json:"partial_fill_probability"`
	ExecutionLatencyMs     int64   `json:"execution_latency_ms"`
	Seed                   int64   `json:"seed"`
}

// RiskConfig holds the rule thresholds; a zero threshold disables the
// corresponding rule.
type RiskConfig struct {
	MaxPositionFraction   float64 `json:"max_position_fraction"`
	MaxDrawdownPct        float64 `json:"max_drawdown_pct"`
	ConcentrationFraction float64 `json:"concentration_fraction"`
	DailyLossLimit        float64 `json:"daily_loss_limit"`
}

type TradingConfig struct {
	InitialBalance      float64 `json:"initial_balance"`
	MaxPositionFraction float64 `json:"max_position_fraction"`
	MinOrderSize        float64 `json:"min_order_size"`
	FeeEstimateRate     float64 `json:"fee_estimate_rate"`
	SnapshotEvery       int     `json:"snapshot_every"`
	SessionDurationMs   int64   `json:"session_duration_ms"`
}

type FeedConfig struct {
	QueueSize        int           `json:"queue_size"`
	PageSize         int           `json:"page_size"`
	MaxReconnectWait time.Duration `json:"max_reconnect_wait"`
	HeartbeatEvery   time.Duration `json:"heartbeat_every"`
}

// BotConfig declares one bot to start from the config file.
type BotConfig struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Class      string             `json:"class"`
	Symbol     string             `json:"symbol"`
	Interval   string             `json:"interval"`
	Parameters map[string]float64 `json:"parameters"`
	// Mode selects the feed: mock, historical or live. Empty falls
	// back to the process-wide default.
	Mode string `json:"mode"`
	// InitialBalance overrides the trading default for this bot.
	InitialBalance float64 `json:"initial_balance"`
	Start          int64   `json:"start"`
	End            int64   `json:"end"`
	AutoStart      bool    `json:"auto_start"`
}

// Load reads config.json if present and applies environment overrides.
func Load() (*Config, error) {
	return LoadFile("config.json")
}

// LoadFile reads the given JSON file if present and applies
// environment overrides on top.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides; these take
// precedence over the file.
func applyEnvOverrides(cfg *Config) {
	// Server
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.ProductionMode = getEnvBoolOrDefault("PRODUCTION_MODE", cfg.ServerConfig.ProductionMode)

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)

	// Binance
	cfg.BinanceConfig.BaseURL = getEnvOrDefault("BINANCE_BASE_URL", cfg.BinanceConfig.BaseURL)
	cfg.BinanceConfig.WSBaseURL = getEnvOrDefault("BINANCE_WS_BASE_URL", cfg.BinanceConfig.WSBaseURL)
	cfg.BinanceConfig.TestNet = getEnvBoolOrDefault("BINANCE_TESTNET", cfg.BinanceConfig.TestNet)
	cfg.BinanceConfig.MockMode = getEnvBoolOrDefault("MOCK_MODE", cfg.BinanceConfig.MockMode)
	cfg.BinanceConfig.RequestsPerMinute = getEnvIntOrDefault("BINANCE_REQUESTS_PER_MINUTE", cfg.BinanceConfig.RequestsPerMinute)

	// Database
	cfg.DatabaseConfig.Enabled = getEnvBoolOrDefault("DATABASE_ENABLED", cfg.DatabaseConfig.Enabled)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DATABASE_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DATABASE_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DATABASE_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DATABASE_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DATABASE_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DATABASE_SSL_MODE", cfg.DatabaseConfig.SSLMode)

	// Redis
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Addr = getEnvOrDefault("REDIS_ADDR", cfg.RedisConfig.Addr)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	// Simulator
	cfg.SimConfig.TakerFeeRate = getEnvFloatOrDefault("SIM_TAKER_FEE_RATE", cfg.SimConfig.TakerFeeRate)
	cfg.SimConfig.MakerFeeRate = getEnvFloatOrDefault("SIM_MAKER_FEE_RATE", cfg.SimConfig.MakerFeeRate)
	cfg.SimConfig.MarketSlippageBps = getEnvFloatOrDefault("SIM_MARKET_SLIPPAGE_BPS", cfg.SimConfig.MarketSlippageBps)
	cfg.SimConfig.PartialFillProbability = getEnvFloatOrDefault("SIM_PARTIAL_FILL_PROBABILITY", cfg.SimConfig.PartialFillProbability)
	cfg.SimConfig.Seed = int64(getEnvIntOrDefault("SIM_SEED", int(cfg.SimConfig.Seed)))

	// Risk
	cfg.RiskConfig.MaxPositionFraction = getEnvFloatOrDefault("RISK_MAX_POSITION_FRACTION", cfg.RiskConfig.MaxPositionFraction)
	cfg.RiskConfig.MaxDrawdownPct = getEnvFloatOrDefault("RISK_MAX_DRAWDOWN_PCT", cfg.RiskConfig.MaxDrawdownPct)
	cfg.RiskConfig.ConcentrationFraction = getEnvFloatOrDefault("RISK_CONCENTRATION_FRACTION", cfg.RiskConfig.ConcentrationFraction)
	cfg.RiskConfig.DailyLossLimit = getEnvFloatOrDefault("RISK_DAILY_LOSS_LIMIT", cfg.RiskConfig.DailyLossLimit)

	// Trading
	cfg.TradingConfig.InitialBalance = getEnvFloatOrDefault("TRADING_INITIAL_BALANCE", cfg.TradingConfig.InitialBalance)
	cfg.TradingConfig.MaxPositionFraction = getEnvFloatOrDefault("TRADING_MAX_POSITION_FRACTION", cfg.TradingConfig.MaxPositionFraction)
	cfg.TradingConfig.MinOrderSize = getEnvFloatOrDefault("TRADING_MIN_ORDER_SIZE", cfg.TradingConfig.MinOrderSize)
	cfg.TradingConfig.SnapshotEvery = getEnvIntOrDefault("TRADING_SNAPSHOT_EVERY", cfg.TradingConfig.SnapshotEvery)
}

// applyDefaults fills whatever the file and environment left unset.
func applyDefaults(cfg *Config) {
	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = 8080
	}
	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "info"
	}
	if cfg.LoggingConfig.Output == "" {
		cfg.LoggingConfig.Output = "stdout"
	}
	if cfg.BinanceConfig.BaseURL == "" {
		cfg.BinanceConfig.BaseURL = "https://api.binance.com"
	}
	if cfg.BinanceConfig.WSBaseURL == "" {
		cfg.BinanceConfig.WSBaseURL = "wss://stream.binance.com:9443"
	}
	if cfg.BinanceConfig.RequestsPerMinute == 0 {
		cfg.BinanceConfig.RequestsPerMinute = 1200
	}
	if cfg.DatabaseConfig.Host == "" {
		cfg.DatabaseConfig.Host = "localhost"
	}
	if cfg.DatabaseConfig.Port == 0 {
		cfg.DatabaseConfig.Port = 5432
	}
	if cfg.DatabaseConfig.User == "" {
		cfg.DatabaseConfig.User = "postgres"
	}
	if cfg.DatabaseConfig.Database == "" {
		cfg.DatabaseConfig.Database = "tradingbot"
	}
	if cfg.DatabaseConfig.SSLMode == "" {
		cfg.DatabaseConfig.SSLMode = "disable"
	}
	if cfg.RedisConfig.Addr == "" {
		cfg.RedisConfig.Addr = "localhost:6379"
	}
	if cfg.RedisConfig.TTL == 0 {
		cfg.RedisConfig.TTL = 24 * time.Hour
	}
	if cfg.SimConfig.TakerFeeRate == 0 {
		cfg.SimConfig.TakerFeeRate = 0.001
	}
	if cfg.SimConfig.MakerFeeRate == 0 {
		cfg.SimConfig.MakerFeeRate = 0.0008
	}
	if cfg.SimConfig.MarketSlippageBps == 0 {
		cfg.SimConfig.MarketSlippageBps = 10
	}
	if cfg.TradingConfig.InitialBalance == 0 {
		cfg.TradingConfig.InitialBalance = 10000
	}
	if cfg.TradingConfig.MaxPositionFraction == 0 {
		cfg.TradingConfig.MaxPositionFraction = 0.25
	}
	if cfg.TradingConfig.MinOrderSize == 0 {
		cfg.TradingConfig.MinOrderSize = 10
	}
	if cfg.TradingConfig.FeeEstimateRate == 0 {
		cfg.TradingConfig.FeeEstimateRate = 0.001
	}
	if cfg.TradingConfig.SnapshotEvery == 0 {
		cfg.TradingConfig.SnapshotEvery = 100
	}
	if cfg.RiskConfig.MaxDrawdownPct == 0 {
		cfg.RiskConfig.MaxDrawdownPct = 20
	}
	if cfg.FeedConfig.QueueSize == 0 {
		cfg.FeedConfig.QueueSize = 256
	}
	if cfg.FeedConfig.PageSize == 0 {
		cfg.FeedConfig.PageSize = 1000
	}
	if cfg.FeedConfig.MaxReconnectWait == 0 {
		cfg.FeedConfig.MaxReconnectWait = time.Minute
	}
	if cfg.FeedConfig.HeartbeatEvery == 0 {
		cfg.FeedConfig.HeartbeatEvery = 30 * time.Second
	}
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

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
