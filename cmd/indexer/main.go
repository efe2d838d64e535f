package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"escrowIndexer/internal/chain"
	"escrowIndexer/internal/config"
	"escrowIndexer/internal/escrow"
	"escrowIndexer/internal/indexer"
	"escrowIndexer/internal/jobs"
	"escrowIndexer/internal/notify"
	"escrowIndexer/internal/scheduler"
	"escrowIndexer/internal/storage"
	"escrowIndexer/internal/storage/postgres"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "Escrow job event indexer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("pg-dsn", "", "Postgres DSN")
	root.PersistentFlags().String("crawl-key", "crawl_onchain", "checkpoint row key")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the indexer loop",
		RunE:  runIndexer,
	}

	runCmd.Flags().String("rpc", "", "chain RPC URL")
	runCmd.Flags().String("contract", "", "escrow contract address")
	runCmd.Flags().Duration("poll-interval", 3*time.Second, "sleep between cycles")
	runCmd.Flags().Duration("missing-checkpoint-wait", 5*time.Second, "sleep when the checkpoint row is missing")
	runCmd.Flags().Uint64("batch-size", 2000, "blocks per eth_getLogs request")
	runCmd.Flags().Int("max-retries", 3, "maximum retry attempts per RPC call")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().String("backlog-schedule", "@every 1m", "cron spec for backlog drains")
	runCmd.Flags().Int("backlog-batch", 100, "pending events per backlog drain")
	runCmd.Flags().Int("backlog-max-attempts", 20, "projection attempts before an event is dead-lettered")
	runCmd.Flags().Bool("single-writer", true, "hold an advisory lock on the crawl key")
	runCmd.Flags().String("redis-url", "", "Redis URL for status change notifications")
	runCmd.Flags().String("notify-channel", "EVENT_JOB_STATUS_CHANGED", "Redis pub/sub channel")
	runCmd.Flags().String("metrics-addr", "", "listen address for /metrics and /healthz")
	runCmd.Flags().String("decode-errors", "./data/decode_errors.jsonl", "decode errors JSONL path, empty disables")

	root.AddCommand(runCmd)
	root.AddCommand(newReplayCmd())
	root.AddCommand(newCheckpointCmd())

	return root
}

func runIndexer(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	contract, err := cfg.ContractAddress()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.SingleWriter {
		lock, err := store.AcquireLock(ctx, cfg.CrawlKey)
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				logger.Warn("release crawl lock failed", zap.Error(err))
			}
		}()
	}

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, contract)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	decoder, err := escrow.NewDecoder()
	if err != nil {
		return err
	}

	var publisher notify.Publisher = notify.Nop{}
	if cfg.RedisURL != "" {
		rdb, err := notify.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		publisher = notify.NewRedisPublisher(rdb, cfg.NotifyChannel)
	}

	metrics, err := indexer.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(cfg.MetricsAddr, logger, stop)
		defer shutdownServer(srv, logger)
	}

	deps := indexer.Dependencies{
		Chain:     chainClient,
		Decoder:   decoder,
		Sessions:  store,
		Projector: jobs.NewProjector(publisher, logger),
		Metrics:   metrics,
	}
	if cfg.DecodeErrors != "" {
		deps.DecodeErrors = storage.NewJsonlStorage(cfg.DecodeErrors)
	}
	runner := indexer.NewRunner(runConfig(cfg), deps, logger)

	backlog := scheduler.New(cfg.BacklogSchedule, func(ctx context.Context) {
		if _, err := runner.DrainBacklog(ctx); err != nil && ctx.Err() == nil {
			logger.Error("backlog drain failed", zap.Error(err))
		}
	}, logger)
	if err := backlog.Start(ctx); err != nil {
		return err
	}
	defer backlog.Stop()

	logger.Info("indexer start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("contract", contract.Hex()),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("crawl_key", cfg.CrawlKey),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.String("backlog_schedule", cfg.BacklogSchedule),
		zap.Bool("single_writer", cfg.SingleWriter),
		zap.Bool("notify", cfg.RedisURL != ""),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	return runner.Run(ctx)
}

func runConfig(cfg config.Config) indexer.RunConfig {
	return indexer.RunConfig{
		CrawlKey:              cfg.CrawlKey,
		PollInterval:          cfg.PollInterval,
		MissingCheckpointWait: cfg.MissingCheckpointWait,
		BatchSize:             cfg.BatchSize,
		MaxRetries:            cfg.MaxRetries,
		RetryBackoff:          cfg.RetryBackoff,
		BacklogBatch:          cfg.BacklogBatch,
		BacklogMaxAttempts:    cfg.BacklogMaxAttempts,
	}
}

func openStore(ctx context.Context, dsn string) (*postgres.Store, error) {
	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
