package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App            AppConfig                 `yaml:"app"`
	Log            LogConfig                 `yaml:"log"`
	Scan           ScanConfig                `yaml:"scan"`
	Premium        PremiumConfig             `yaml:"premium"`
	Fees           FeeConfig                 `yaml:"fees"`
	ImpactNotional NotionalConfig            `yaml:"impact_notional"`
	Exchanges      map[string]ExchangeConfig `yaml:"exchanges"`
	Sink           SinkConfig                `yaml:"sink"`
}

type AppConfig struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // console | json
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type ScanConfig struct {
	Interval          time.Duration `yaml:"interval"`
	UniverseSize      int           `yaml:"universe_size"`
	ReferenceExchange string        `yaml:"reference_exchange"`
	FallbackSymbols   []string      `yaml:"fallback_symbols"`
	Workers           int           `yaml:"workers"`
	OrderBookDepth    int           `yaml:"order_book_depth"`
	HistoryLimit      int           `yaml:"history_limit"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	Mock              bool          `yaml:"mock"`
}

type PremiumConfig struct {
	SampleInterval time.Duration `yaml:"sample_interval"`
	HistorySize    int           `yaml:"history_size"`
	Window         int           `yaml:"window"`
	BaseRate       float64       `yaml:"base_rate"`
	RateClamp      float64       `yaml:"rate_clamp"`
	OrderBookDepth int           `yaml:"order_book_depth"`
	WatchSymbols   []string      `yaml:"watch_symbols"`
}

type FeeConfig struct {
	Taker   map[string]float64 `yaml:"taker"`
	Default float64            `yaml:"default"`
}

type NotionalConfig struct {
	ByBase  map[string]float64 `yaml:"by_base"`
	Default float64            `yaml:"default"`
}

type ExchangeConfig struct {
	Enabled         bool          `yaml:"enabled"`
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	RPS             float64       `yaml:"rps"`
	Burst           int           `yaml:"burst"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
}

type SinkConfig struct {
	Driver   string         `yaml:"driver"` // memory | redis | postgres
	Keep     int            `yaml:"keep"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	NATS     NATSConfig     `yaml:"nats"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// Default returns the configuration used when no file or override says otherwise.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Port:         "3000",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Scan: ScanConfig{
			Interval:          60 * time.Second,
			UniverseSize:      30,
			ReferenceExchange: "binance",
			FallbackSymbols: []string{
				"BTC/USDT", "ETH/USDT", "SOL/USDT", "BNB/USDT", "XRP/USDT", "DOGE/USDT", "ADA/USDT",
			},
			Workers:        10,
			OrderBookDepth: 5,
			HistoryLimit:   2,
			RequestTimeout: 10 * time.Second,
		},
		Premium: PremiumConfig{
			SampleInterval: 5 * time.Second,
			HistorySize:    5760,
			Window:         720,
			BaseRate:       0.0001,
			RateClamp:      0.0005,
			OrderBookDepth: 50,
			WatchSymbols:   []string{"BTC/USDT", "ETH/USDT"},
		},
		Fees: FeeConfig{
			Taker: map[string]float64{
				"binance":     0.0005,
				"okx":         0.0005,
				"bybit":       0.00055,
				"hyperliquid": 0.00035,
			},
			Default: 0.0005,
		},
		ImpactNotional: NotionalConfig{
			ByBase: map[string]float64{
				"BTC": 50000,
				"ETH": 40000,
				"BNB": 10000,
				"SOL": 10000,
			},
			Default: 5000,
		},
		Exchanges: map[string]ExchangeConfig{
			"binance":     {Enabled: true, RPS: 10, Burst: 5},
			"okx":         {Enabled: true, RPS: 8, Burst: 4},
			"bybit":       {Enabled: true, RPS: 10, Burst: 5},
			"hyperliquid": {Enabled: true, RPS: 5, Burst: 2},
			"mexc":        {Enabled: false, RPS: 5, Burst: 2},
		},
		Sink: SinkConfig{
			Driver: "memory",
			Keep:   10,
			Redis: RedisConfig{
				Addr: "localhost:6379",
				Key:  "fundarb:snapshots",
			},
			NATS: NATSConfig{
				Subject: "fundarb.opportunities",
			},
		},
	}
}

// Load starts from Default, overlays the YAML file at path when it exists, then
// applies .env and environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			log.Warn().Str("path", path).Msg("config file not found, using defaults")
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, reading from environment directly")
	}
	cfg.applyEnv()
	cfg.Validate()

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.App.Port = getEnv("APP_PORT", c.App.Port)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Sink.Driver = getEnv("SINK_DRIVER", c.Sink.Driver)
	c.Sink.Redis.Addr = getEnv("REDIS_ADDR", c.Sink.Redis.Addr)
	c.Sink.Postgres.DSN = getEnv("PG_DSN", c.Sink.Postgres.DSN)
	c.Sink.NATS.URL = getEnv("NATS_URL", c.Sink.NATS.URL)

	for name, ex := range c.Exchanges {
		ex.APIKey = getEnv(strings.ToUpper(name)+"_API_KEY", ex.APIKey)
		c.Exchanges[name] = ex
	}
}

// Validate replaces values that cannot work with their defaults.
func (c *Config) Validate() {
	def := Default()

	if c.App.Port == "" {
		c.App.Port = def.App.Port
	}
	if c.Scan.Interval <= 0 {
		c.Scan.Interval = def.Scan.Interval
	}
	if c.Scan.UniverseSize <= 0 {
		c.Scan.UniverseSize = def.Scan.UniverseSize
	}
	if len(c.Scan.FallbackSymbols) == 0 {
		c.Scan.FallbackSymbols = def.Scan.FallbackSymbols
	}
	if c.Scan.Workers <= 0 {
		c.Scan.Workers = def.Scan.Workers
	}
	if c.Scan.OrderBookDepth <= 0 {
		c.Scan.OrderBookDepth = def.Scan.OrderBookDepth
	}
	if c.Scan.HistoryLimit < 2 {
		c.Scan.HistoryLimit = def.Scan.HistoryLimit
	}
	if c.Scan.RequestTimeout <= 0 {
		c.Scan.RequestTimeout = def.Scan.RequestTimeout
	}

	if c.Premium.SampleInterval <= 0 {
		c.Premium.SampleInterval = def.Premium.SampleInterval
	}
	if c.Premium.HistorySize <= 0 {
		c.Premium.HistorySize = def.Premium.HistorySize
	}
	if c.Premium.Window <= 0 {
		c.Premium.Window = def.Premium.Window
	}
	if c.Premium.Window > c.Premium.HistorySize {
		c.Premium.Window = c.Premium.HistorySize
	}
	if c.Premium.RateClamp <= 0 {
		c.Premium.RateClamp = def.Premium.RateClamp
	}
	if c.Premium.OrderBookDepth <= 0 {
		c.Premium.OrderBookDepth = def.Premium.OrderBookDepth
	}

	if c.Fees.Default <= 0 {
		c.Fees.Default = def.Fees.Default
	}
	if c.ImpactNotional.Default <= 0 {
		c.ImpactNotional.Default = def.ImpactNotional.Default
	}

	switch c.Sink.Driver {
	case "memory", "redis", "postgres":
	default:
		log.Warn().Str("driver", c.Sink.Driver).Msg("unknown sink driver, using memory")
		c.Sink.Driver = "memory"
	}
	if c.Sink.Keep <= 0 {
		c.Sink.Keep = def.Sink.Keep
	}
	if c.Sink.Redis.Key == "" {
		c.Sink.Redis.Key = def.Sink.Redis.Key
	}
	if c.Sink.NATS.Subject == "" {
		c.Sink.NATS.Subject = def.Sink.NATS.Subject
	}
}

// EnabledExchanges returns the names of enabled exchanges.
func (c *Config) EnabledExchanges() []string {
	var names []string
	for name, ex := range c.Exchanges {
		if ex.Enabled {
			names = append(names, name)
		}
	}
	return names
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
