package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"escrowIndexer/internal/config"
	"escrowIndexer/internal/escrow"
	"escrowIndexer/internal/indexer"
	"escrowIndexer/internal/jobs"
)

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-project pending journal events once",
		RunE:  runReplay,
	}
	cmd.Flags().Int("backlog-batch", 100, "pending events to re-project")
	cmd.Flags().Int("backlog-max-attempts", 20, "projection attempts before an event is dead-lettered")
	return cmd
}

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
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

	decoder, err := escrow.NewDecoder()
	if err != nil {
		return err
	}

	runner := indexer.NewRunner(runConfig(cfg), indexer.Dependencies{
		Decoder:   decoder,
		Sessions:  store,
		Projector: jobs.NewProjector(nil, logger),
	}, logger)

	result, err := runner.DrainBacklog(ctx)
	if err != nil {
		return err
	}
	logger.Info("replay complete",
		zap.String("crawl_key", cfg.CrawlKey),
		zap.Int("pending", result.Pending),
		zap.Int("applied", result.Applied),
		zap.Int("dead", result.Dead),
	)
	return nil
}
