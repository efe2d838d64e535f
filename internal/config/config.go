package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL                string
	Contract              string
	PGDSN                 string
	CrawlKey              string
	PollInterval          time.Duration
	MissingCheckpointWait time.Duration
	BatchSize             uint64
	MaxRetries            int
	RetryBackoff          time.Duration
	BacklogSchedule       string
	BacklogBatch          int
	BacklogMaxAttempts    int
	SingleWriter          bool
	RedisURL              string
	NotifyChannel         string
	MetricsAddr           string
	DecodeErrors          string
	LogLevel              string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("crawl-key", "crawl_onchain")
	v.SetDefault("poll-interval", 3*time.Second)
	v.SetDefault("missing-checkpoint-wait", 5*time.Second)
	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("backlog-schedule", "@every 1m")
	v.SetDefault("backlog-batch", 100)
	v.SetDefault("backlog-max-attempts", 20)
	v.SetDefault("single-writer", true)
	v.SetDefault("notify-channel", "EVENT_JOB_STATUS_CHANGED")
	v.SetDefault("decode-errors", "./data/decode_errors.jsonl")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:                v.GetString("rpc"),
		Contract:              strings.TrimSpace(v.GetString("contract")),
		PGDSN:                 v.GetString("pg-dsn"),
		CrawlKey:              v.GetString("crawl-key"),
		PollInterval:          v.GetDuration("poll-interval"),
		MissingCheckpointWait: v.GetDuration("missing-checkpoint-wait"),
		BatchSize:             v.GetUint64("batch-size"),
		MaxRetries:            v.GetInt("max-retries"),
		RetryBackoff:          v.GetDuration("retry-backoff"),
		BacklogSchedule:       v.GetString("backlog-schedule"),
		BacklogBatch:          v.GetInt("backlog-batch"),
		BacklogMaxAttempts:    v.GetInt("backlog-max-attempts"),
		SingleWriter:          v.GetBool("single-writer"),
		RedisURL:              v.GetString("redis-url"),
		NotifyChannel:         v.GetString("notify-channel"),
		MetricsAddr:           v.GetString("metrics-addr"),
		DecodeErrors:          v.GetString("decode-errors"),
		LogLevel:              v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate reports every missing or malformed setting needed by the indexer loop.
func (c Config) Validate() error {
	var errs []error
	if c.RPCURL == "" {
		errs = append(errs, fmt.Errorf("rpc url is required"))
	}
	if c.PGDSN == "" {
		errs = append(errs, fmt.Errorf("pg dsn is required"))
	}
	if _, err := c.ContractAddress(); err != nil {
		errs = append(errs, err)
	}
	if c.CrawlKey == "" {
		errs = append(errs, fmt.Errorf("crawl key is required"))
	}
	if c.BatchSize == 0 {
		errs = append(errs, fmt.Errorf("batch size must be greater than zero"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive"))
	}
	if c.MissingCheckpointWait <= 0 {
		errs = append(errs, fmt.Errorf("missing checkpoint wait must be positive"))
	}
	return errors.Join(errs...)
}

// ContractAddress parses the configured escrow contract address.
func (c Config) ContractAddress() (common.Address, error) {
	if c.Contract == "" {
		return common.Address{}, fmt.Errorf("contract address is required")
	}
	if !common.IsHexAddress(c.Contract) {
		return common.Address{}, fmt.Errorf("invalid contract address: %s", c.Contract)
	}
	return common.HexToAddress(c.Contract), nil
}
