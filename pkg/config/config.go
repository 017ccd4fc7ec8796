package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" validate:"required"`
	Log         struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	ClickHouse struct {
		Host             string        `yaml:"host" validate:"required"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"coinsight"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic" default:"coinsight.predictions"`
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		Compression  string        `yaml:"compression" default:"gzip"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"kafka"`
	Binance struct {
		BaseURL      string        `yaml:"base_url" default:"https://api.binance.com"`
		QuoteTimeout time.Duration `yaml:"quote_timeout" default:"3s"`
		KlineTimeout time.Duration `yaml:"kline_timeout" default:"15s"`
	} `yaml:"binance"`
	CoinGecko struct {
		BaseURL       string        `yaml:"base_url" default:"https://api.coingecko.com"`
		APIKey        string        `yaml:"api_key"`
		PriceTimeout  time.Duration `yaml:"price_timeout" default:"5s"`
		MarketTimeout time.Duration `yaml:"market_timeout" default:"15s"`
		RateCapacity  float64       `yaml:"rate_capacity" default:"10"`
		RatePerSec    float64       `yaml:"rate_per_sec" default:"0.5"`
	} `yaml:"coingecko"`
	FearGreed struct {
		BaseURL string        `yaml:"base_url" default:"https://api.alternative.me"`
		Timeout time.Duration `yaml:"timeout" default:"5s"`
	} `yaml:"feargreed"`
	Quote struct {
		TTL          time.Duration `yaml:"ttl" default:"15s"`
		Debounce     time.Duration `yaml:"debounce" default:"200ms"`
		MaxDebounce  time.Duration `yaml:"max_debounce" default:"1s"`
		MaxRetries   int           `yaml:"max_retries" default:"4"`
		RetryBase    time.Duration `yaml:"retry_base" default:"500ms"`
		RetryCap     time.Duration `yaml:"retry_cap" default:"8s"`
	} `yaml:"quote"`
	Pipeline struct {
		Interval        time.Duration `yaml:"interval" default:"1h"`
		Freshness       time.Duration `yaml:"freshness" default:"1h"`
		CandleCount     int           `yaml:"candle_count" default:"168"`
		WindowHours     int           `yaml:"window_hours" default:"24"`
		TopN            int           `yaml:"top_n" default:"40"`
		Staleness       time.Duration `yaml:"staleness" default:"6h"`
		MinVolume24h    float64       `yaml:"min_volume_24h" default:"1000000"`
		Targets         []string      `yaml:"targets"`
		RunOnStart      bool          `yaml:"run_on_start" default:"true"`
	} `yaml:"pipeline"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("COINGECKO_API_KEY"); v != "" {
		c.CoinGecko.APIKey = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TARGETS"); v != "" {
		c.Pipeline.Targets = strings.Split(v, ",")
	}

	return c, nil
}
