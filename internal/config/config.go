package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/snapfulfil/order-router/internal/core/domain"
)

type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Redis    RedisConfig     `mapstructure:"redis"`
	Queue    QueueConfig     `mapstructure:"queue"`
	Routing  RoutingConfig   `mapstructure:"routing"`
	Partners []PartnerConfig `mapstructure:"partners"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type QueueConfig struct {
	Workers         int           `mapstructure:"workers"`
	BufferSize      int           `mapstructure:"buffer_size"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	BackoffBase     time.Duration `mapstructure:"backoff_base"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
	CounterTimeout  time.Duration `mapstructure:"counter_timeout"`
}

type RoutingConfig struct {
	USSKUs     []string `mapstructure:"us_skus"`
	RefillSKUs []string `mapstructure:"refill_skus"`
}

type PartnerConfig struct {
	ID string `mapstructure:"id"`
	// DailyCap of 0 means unlimited.
	DailyCap int64  `mapstructure:"daily_cap"`
	Endpoint string `mapstructure:"endpoint"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.buffer_size", 1000)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.backoff_base", "500ms")
	v.SetDefault("queue.dispatch_timeout", "5s")
	v.SetDefault("queue.counter_timeout", "2s")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue.workers must be at least 1")
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue.max_attempts must be at least 1")
	}
	if len(c.Partners) == 0 {
		return fmt.Errorf("at least one partner is required")
	}

	fallbackSeen := false
	for _, p := range c.Partners {
		if p.ID == "" {
			return fmt.Errorf("partner id is required")
		}
		if p.Endpoint == "" {
			return fmt.Errorf("partner %s: endpoint is required", p.ID)
		}
		if domain.Partner(p.ID) == domain.FallbackPartner {
			fallbackSeen = true
			// The fallback partner must always accept, so a cap on it
			// would break capacity fallback.
			if p.DailyCap != 0 {
				return fmt.Errorf("partner %s is the fallback partner and must not have a daily cap", p.ID)
			}
		}
	}
	if !fallbackSeen {
		return fmt.Errorf("fallback partner %s must be configured", domain.FallbackPartner)
	}
	return nil
}

// Caps returns the per-partner daily volume caps, 0 meaning unlimited.
func (c *Config) Caps() map[domain.Partner]int64 {
	caps := make(map[domain.Partner]int64, len(c.Partners))
	for _, p := range c.Partners {
		caps[domain.Partner(p.ID)] = p.DailyCap
	}
	return caps
}

// Endpoints returns the per-partner dispatch URLs.
func (c *Config) Endpoints() map[domain.Partner]string {
	endpoints := make(map[domain.Partner]string, len(c.Partners))
	for _, p := range c.Partners {
		endpoints[domain.Partner(p.ID)] = p.Endpoint
	}
	return endpoints
}
