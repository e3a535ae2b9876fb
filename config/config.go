package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	TrendGuard TrendGuardConfig `yaml:"trendguard"`
}

// TrendGuardConfig is the project configuration.
type TrendGuardConfig struct {
	Redis   RedisConfig   `yaml:"redis"`
	Input   InputConfig   `yaml:"input"`
	Store   StoreConfig   `yaml:"store"`
	Trends  TrendsConfig  `yaml:"trends"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Rules   RulesConfig   `yaml:"rules"`
	Respond RespondConfig `yaml:"respond"`
	Queue   QueueConfig   `yaml:"queue"`
	API     APIConfig     `yaml:"api"`
	Logging LoggingConfig `yaml:"logging"`
}

// RedisConfig is the shared Redis connection used by the ingest list, the
// queue lanes, the trend ledger and the review lanes.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// InputConfig controls the classified-event ingest reader.
type InputConfig struct {
	Key          string        `yaml:"key"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
	Workers      int           `yaml:"workers"`
}

// StoreConfig selects and configures the content store backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // postgres or memory
	DSN    string `yaml:"dsn"`
}

// TrendsConfig controls windowed trend detection.
type TrendsConfig struct {
	Threshold          float64       `yaml:"threshold"`           // min avg harmfulness
	Lookback           time.Duration `yaml:"lookback"`            // scan window
	Period             time.Duration `yaml:"period"`              // cycle interval
	ViralityEngagement float64       `yaml:"virality_engagement"` // engagement normalizer
	MinHashtagCount    int           `yaml:"min_hashtag_count"`
	MinKeywordCount    int           `yaml:"min_keyword_count"`
	MinCrossPlatform   int           `yaml:"min_cross_platform_count"`
}

// LedgerConfig controls trend and warning retention.
type LedgerConfig struct {
	KeyPrefix  string        `yaml:"key_prefix"`
	TrendTTL   time.Duration `yaml:"trend_ttl"`
	WarningTTL time.Duration `yaml:"warning_ttl"`
}

// RulesConfig points at the escalation rule file or directory.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// RespondConfig controls the response executor.
type RespondConfig struct {
	AutoActionThreshold float64       `yaml:"auto_action_threshold"`
	NotifyPerMinute     int           `yaml:"notify_per_minute"`
	Webhook             WebhookConfig `yaml:"webhook"`
}

// WebhookConfig points notifications at a moderation-team endpoint. When the
// URL is empty, notifications go to the process log instead.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// QueueConfig controls the job lanes.
type QueueConfig struct {
	KeyPrefix            string        `yaml:"key_prefix"`
	ResponseWorkers      int           `yaml:"response_workers"`
	EscalationWorkers    int           `yaml:"escalation_workers"`
	StateWorkers         int           `yaml:"state_workers"`
	ResponseAttempts     int           `yaml:"response_attempts"`
	EscalationAttempts   int           `yaml:"escalation_attempts"`
	ContentStateAttempts int           `yaml:"content_state_attempts"`
	BackoffBase          time.Duration `yaml:"backoff_base"`
	PollInterval         time.Duration `yaml:"poll_interval"`
}

// APIConfig controls the operator HTTP surface.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Debug   bool   `yaml:"debug"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
