package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"todoagent/pkg/config"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type StorageConfig struct {
	Driver string `yaml:"driver"` // postgres, memory
}

type LLMConfig struct {
	Provider      string        `yaml:"provider"` // openai, anthropic, ollama
	Model         string        `yaml:"model"`
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`
	Temperature   float64       `yaml:"temperature"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
	Breaker       BreakerConfig `yaml:"breaker"`
}

type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

type AgentConfig struct {
	Adapter          string `yaml:"adapter"`
	MaxHistory       int    `yaml:"max_history"`
	MaxHistoryTokens int    `yaml:"max_history_tokens"`
	// SystemPrompt and GreetingReply override the adapter defaults when set.
	SystemPrompt  string `yaml:"system_prompt"`
	GreetingReply string `yaml:"greeting_reply"`
}

type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`
	// Rate uses the ulule/limiter format, e.g. "20-M".
	Rate  string `yaml:"rate"`
	Store string `yaml:"store"` // memory, redis
}

type WorkerConfig struct {
	OutboxInterval   time.Duration `yaml:"outbox_interval"`
	OutboxBatchSize  int           `yaml:"outbox_batch_size"`
	OutboxMaxRetries int           `yaml:"outbox_max_retries"`
	ReminderSpec     string        `yaml:"reminder_spec"`
	ReplaySpec       string        `yaml:"replay_spec"`
	Timezone         string        `yaml:"timezone"`
	DedupTTL         time.Duration `yaml:"dedup_ttl"`
	ConsumerRetries  int64         `yaml:"consumer_retries"`
}

type Config struct {
	Server    config.ServerConfig `yaml:"server"`
	DB        config.DBConfig     `yaml:"db"`
	Storage   StorageConfig       `yaml:"storage"`
	JWT       config.JWTConfig    `yaml:"jwt"`
	LLM       LLMConfig           `yaml:"llm"`
	Agent     AgentConfig         `yaml:"agent"`
	Redis     config.RedisConfig  `yaml:"redis"`
	MQ        config.MQConfig     `yaml:"mq"`
	RateLimit RateLimitConfig     `yaml:"ratelimit"`
	Worker    WorkerConfig        `yaml:"worker"`
	Log       config.LogConfig    `yaml:"log"`
}

// Load reads config/<env>.yaml layered over base.yaml, then applies env overrides.
func Load(env, configDir string) (*Config, error) {
	raw, err := config.LoadConfig(env, configDir)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := config.Decode(raw, cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideLogFromEnv(&cfg.Log)
	overrideLLMFromEnv(&cfg.LLM)
	if driver := os.Getenv("STORAGE_DRIVER"); driver != "" {
		cfg.Storage.Driver = driver
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default holds the values used when a key is absent from every yaml layer.
func Default() *Config {
	return &Config{
		Server:  config.ServerConfig{Port: ":8080", ShutdownTimeout: 10 * time.Second},
		DB:      config.DBConfig{Host: "localhost", Port: 5432, SSLMode: "disable", MaxConns: 10, SlowQuery: 100 * time.Millisecond},
		Storage: StorageConfig{Driver: DriverPostgres},
		JWT:     config.JWTConfig{TTL: 24 * time.Hour},
		LLM: LLMConfig{
			Provider:      "openai",
			Model:         "gpt-4o-mini",
			Temperature:   0.2,
			Timeout:       30 * time.Second,
			RetryAttempts: 2,
			RetryBackoff:  500 * time.Millisecond,
			Breaker:       BreakerConfig{FailureThreshold: 5, OpenTimeout: 30 * time.Second},
		},
		Agent:     AgentConfig{Adapter: "todo", MaxHistory: 10},
		Redis:     config.RedisConfig{Addr: "localhost:6379"},
		RateLimit: RateLimitConfig{Rate: "30-M", Store: "memory"},
		Worker: WorkerConfig{
			OutboxInterval:   time.Second,
			OutboxBatchSize:  100,
			OutboxMaxRetries: 5,
			ReminderSpec:     "@every 1m",
			ReplaySpec:       "@every 1h",
			Timezone:         "UTC",
			DedupTTL:         24 * time.Hour,
			ConsumerRetries:  5,
		},
		Log: config.LogConfig{Level: "info"},
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	switch c.Storage.Driver {
	case DriverPostgres, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver))
	}
	switch c.LLM.Provider {
	case "openai", "anthropic", "ollama":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm.timeout must be positive"))
	}
	if c.LLM.RetryAttempts < 0 {
		errs = append(errs, errors.New("llm.retry_attempts must not be negative"))
	}
	if c.Agent.MaxHistory < 0 {
		errs = append(errs, errors.New("agent.max_history must not be negative"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	switch c.RateLimit.Store {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("ratelimit.store %q is not supported", c.RateLimit.Store))
	}
	return errors.Join(errs...)
}

func overrideLLMFromEnv(cfg *LLMConfig) {
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		cfg.Provider = provider
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		cfg.Model = model
	}
	if base := os.Getenv("LLM_BASE_URL"); base != "" {
		cfg.BaseURL = base
	}
	if attempts := os.Getenv("LLM_RETRY_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil {
			cfg.RetryAttempts = n
		}
	}
}
