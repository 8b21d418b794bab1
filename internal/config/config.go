package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Recharge  RechargeConfig  `yaml:"recharge"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// GatewayConfig points at the upstream PIX provider.
type GatewayConfig struct {
	BaseURL        string `yaml:"base_url"`
	SecretKey      string `yaml:"secret_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (g GatewayConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// RechargeConfig bounds a single top-up attempt.
// Defaults: min=30.00, max=10000.00, expiry=900s, poll=1000ms.
type RechargeConfig struct {
	MinAmount      string `yaml:"min_amount"`
	MaxAmount      string `yaml:"max_amount"`
	ExpirySeconds  int    `yaml:"expiry_seconds"`
	PollIntervalMS int    `yaml:"poll_interval_ms"`

	min decimal.Decimal
	max decimal.Decimal
}

func (r RechargeConfig) Min() decimal.Decimal  { return r.min }
func (r RechargeConfig) Max() decimal.Decimal  { return r.max }
func (r RechargeConfig) Expiry() time.Duration { return time.Duration(r.ExpirySeconds) * time.Second }
func (r RechargeConfig) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalMS) * time.Millisecond
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// Load reads yaml file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	// override secrets from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if sk := os.Getenv("GATEWAY_SECRET_KEY"); sk != "" {
		cfg.Gateway.SecretKey = sk
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) finalize() error {
	if c.Recharge.MinAmount == "" {
		c.Recharge.MinAmount = "30.00"
	}
	if c.Recharge.MaxAmount == "" {
		c.Recharge.MaxAmount = "10000.00"
	}
	if c.Recharge.ExpirySeconds == 0 {
		c.Recharge.ExpirySeconds = 900
	}
	if c.Recharge.PollIntervalMS == 0 {
		c.Recharge.PollIntervalMS = 1000
	}
	if c.Gateway.TimeoutSeconds == 0 {
		c.Gateway.TimeoutSeconds = 15
	}
	var err error
	if c.Recharge.min, err = decimal.NewFromString(c.Recharge.MinAmount); err != nil {
		return fmt.Errorf("recharge.min_amount: %w", err)
	}
	if c.Recharge.max, err = decimal.NewFromString(c.Recharge.MaxAmount); err != nil {
		return fmt.Errorf("recharge.max_amount: %w", err)
	}
	if c.Recharge.max.LessThan(c.Recharge.min) {
		return fmt.Errorf("recharge.max_amount %s below min_amount %s", c.Recharge.MaxAmount, c.Recharge.MinAmount)
	}
	return nil
}
