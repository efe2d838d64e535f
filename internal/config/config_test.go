package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CrawlKey != "crawl_onchain" {
		t.Fatalf("crawl key = %q", cfg.CrawlKey)
	}
	if cfg.PollInterval != 3*time.Second || cfg.MissingCheckpointWait != 5*time.Second {
		t.Fatalf("intervals = %v / %v", cfg.PollInterval, cfg.MissingCheckpointWait)
	}
	if cfg.BatchSize != 2000 || cfg.MaxRetries != 3 || cfg.RetryBackoff != 500*time.Millisecond {
		t.Fatalf("fetch settings = %+v", cfg)
	}
	if cfg.BacklogSchedule != "@every 1m" || cfg.BacklogBatch != 100 || cfg.BacklogMaxAttempts != 20 {
		t.Fatalf("backlog settings = %+v", cfg)
	}
	if !cfg.SingleWriter || cfg.NotifyChannel != "EVENT_JOB_STATUS_CHANGED" || cfg.RedisURL != "" {
		t.Fatalf("ambient settings = %+v", cfg)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	file := filepath.Join(dir, "indexer.yaml")
	content := "rpc: http://file:8545\ncontract: \"0xBB6F3Ee65fd0C6Df66d29b5Ad9F3A8695A638172\"\nbatch-size: 500\n"
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("INDEXER_PG_DSN", "postgres://env/db")
	t.Setenv("INDEXER_BATCH_SIZE", "750")
	t.Setenv("INDEXER_POLL_INTERVAL", "10s")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("crawl-key", "crawl_onchain", "")
	if err := flags.Parse([]string{"--crawl-key=crawl_testnet"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(file, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCURL != "http://file:8545" {
		t.Fatalf("rpc = %q", cfg.RPCURL)
	}
	if cfg.PGDSN != "postgres://env/db" {
		t.Fatalf("pg dsn = %q", cfg.PGDSN)
	}
	if cfg.BatchSize != 750 {
		t.Fatalf("env should override file, batch size = %d", cfg.BatchSize)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Fatalf("poll interval = %v", cfg.PollInterval)
	}
	if cfg.CrawlKey != "crawl_testnet" {
		t.Fatalf("crawl key = %q", cfg.CrawlKey)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := Config{Contract: "not-an-address"}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"rpc url", "pg dsn", "invalid contract address", "crawl key", "batch size", "poll interval"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %q", err, want)
		}
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
