package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"escrowIndexer/internal/config"
	"escrowIndexer/internal/model"
	"escrowIndexer/internal/storage/postgres"
)

func newCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or seed the crawl checkpoint",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the checkpoint for the crawl key",
		RunE:  runCheckpointShow,
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the checkpoint row if it does not exist",
		RunE:  runCheckpointSeed,
	}
	seedCmd.Flags().Uint64("start", 0, "first block to scan")
	_ = seedCmd.MarkFlagRequired("start")

	cmd.AddCommand(showCmd, seedCmd)
	return cmd
}

func runCheckpointShow(cmd *cobra.Command, _ []string) error {
	cfg, store, err := checkpointStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	cp, found, err := store.Checkpoint(cmd.Context(), cfg.CrawlKey)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", postgres.ErrCheckpointNotFound, cfg.CrawlKey)
	}
	fmt.Fprint(cmd.OutOrStdout(), formatCheckpoint(cp))
	return nil
}

func runCheckpointSeed(cmd *cobra.Command, _ []string) error {
	start, _ := cmd.Flags().GetUint64("start")
	cfg, store, err := checkpointStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	created, err := store.SeedCheckpoint(cmd.Context(), cfg.CrawlKey, start)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %s at block %d\n", cfg.CrawlKey, start)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "checkpoint %s already exists, left unchanged\n", cfg.CrawlKey)
	}
	return nil
}

func checkpointStore(cmd *cobra.Command) (config.Config, *postgres.Store, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
		cmd.SetContext(ctx)
	}
	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return cfg, store, nil
}

func formatCheckpoint(cp model.Checkpoint) string {
	value := "null"
	if cp.LastBlock != nil {
		value = strconv.FormatUint(*cp.LastBlock, 10)
	}
	updated := "-"
	if cp.UpdatedAt != nil {
		updated = cp.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("key=%s start_at=%d value=%s next=%d updated_at=%s\n",
		cp.Key, cp.StartAt, value, cp.NextBlock(), updated)
}
