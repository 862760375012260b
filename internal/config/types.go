package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds every option the gateway reads at boot. There is no hot
// reload: configuration is read exactly once per process.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Upstream UpstreamConfig `koanf:"upstream"`
	Describe DescribeConfig `koanf:"describe"`
	Score    ScoreConfig    `koanf:"score"`
}

// ServerConfig collects the bootstrap knobs owned by the lifecycle agent.
type ServerConfig struct {
	Listen  ListenConfig      `koanf:"listen"`
	Logging LoggingConfig     `koanf:"logging"`
	Cache   ServerCacheConfig `koanf:"cache"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level, format, and correlation ID wiring.
type LoggingConfig struct {
	Level             string `koanf:"level"`
	Format            string `koanf:"format"`
	CorrelationHeader string `koanf:"correlationHeader"`
}

// ServerCacheConfig selects the customer/sector store backend. Memory is the
// default; redis exists for multi-instance deployments where in-process maps
// cannot be shared.
type ServerCacheConfig struct {
	Backend string                 `koanf:"backend"`
	Redis   ServerRedisCacheConfig `koanf:"redis"`
}

type ServerRedisCacheConfig struct {
	Address  string               `koanf:"address"`
	Username string               `koanf:"username"`
	Password string               `koanf:"password"`
	DB       int                  `koanf:"db"`
	TLS      ServerRedisTLSConfig `koanf:"tls"`
}

type ServerRedisTLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// UpstreamConfig describes the authoritative data/scoring backend every
// ingestion call forwards to. Credentials are injected as HTTP basic auth.
type UpstreamConfig struct {
	BaseURL        string `koanf:"baseUrl"`
	Username       string `koanf:"username"`
	Password       string `koanf:"password"`
	TimeoutSeconds int    `koanf:"timeoutSeconds"`
	// ScorePath, when set, routes score lookups to the upstream backend
	// instead of the local sector-based synthesizer.
	ScorePath string `koanf:"scorePath"`
}

// DescribeConfig configures the optional natural-language generation backend.
// An empty APIKey disables delegation; the describe handler then renders the
// local template over the same facts.
type DescribeConfig struct {
	APIKey         string  `koanf:"apiKey"`
	BaseURL        string  `koanf:"baseUrl"`
	Model          string  `koanf:"model"`
	MaxTokens      int     `koanf:"maxTokens"`
	Temperature    float64 `koanf:"temperature"`
	TimeoutSeconds int     `koanf:"timeoutSeconds"`
}

// ScoreConfig bounds the synthesized per-sector scores.
type ScoreConfig struct {
	Min int `koanf:"min"`
	Max int `koanf:"max"`
}

// Validate rejects configurations the runtime agents cannot act on.
func (c Config) Validate() error {
	switch strings.ToLower(c.Server.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: server.logging.level unsupported: %s", c.Server.Logging.Level)
	}
	switch strings.ToLower(c.Server.Logging.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("config: server.logging.format unsupported: %s", c.Server.Logging.Format)
	}
	if c.Server.Listen.Port <= 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: server.listen.port invalid: %d", c.Server.Listen.Port)
	}
	backend := strings.TrimSpace(strings.ToLower(c.Server.Cache.Backend))
	switch backend {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(c.Server.Cache.Redis.Address) == "" {
			return errors.New("config: server.cache.redis.address required for redis backend")
		}
	default:
		return fmt.Errorf("config: server.cache.backend unsupported: %s", c.Server.Cache.Backend)
	}
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		return errors.New("config: upstream.baseUrl required")
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("config: upstream.timeoutSeconds invalid: %d", c.Upstream.TimeoutSeconds)
	}
	if c.Describe.TimeoutSeconds < 0 {
		return fmt.Errorf("config: describe.timeoutSeconds invalid: %d", c.Describe.TimeoutSeconds)
	}
	if c.Describe.MaxTokens < 0 {
		return fmt.Errorf("config: describe.maxTokens invalid: %d", c.Describe.MaxTokens)
	}
	if c.Score.Min <= 0 || c.Score.Max <= c.Score.Min {
		return fmt.Errorf("config: score band invalid: [%d, %d]", c.Score.Min, c.Score.Max)
	}
	return nil
}

// DefaultConfig returns the baseline values a bare deployment starts from.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ListenConfig{
				Address: "0.0.0.0",
				Port:    8080,
			},
			Logging: LoggingConfig{
				Level:             "info",
				Format:            "json",
				CorrelationHeader: "X-Request-ID",
			},
			Cache: ServerCacheConfig{
				Backend: "memory",
			},
		},
		Upstream: UpstreamConfig{
			TimeoutSeconds: 30,
		},
		Describe: DescribeConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			MaxTokens:      180,
			Temperature:    0.7,
			TimeoutSeconds: 30,
		},
		Score: ScoreConfig{
			Min: 300,
			Max: 800,
		},
	}
}
