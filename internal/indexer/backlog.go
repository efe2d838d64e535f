package indexer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"escrowIndexer/internal/jobs"
	"escrowIndexer/internal/model"
)

// BacklogResult summarizes one backlog drain.
type BacklogResult struct {
	Pending int
	Applied int
	Dead    int
}

// DrainBacklog re-projects pending journal entries in chain order. Entries that
// stay retryable past the attempt limit are moved to dead.
func (r *Runner) DrainBacklog(ctx context.Context) (BacklogResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result BacklogResult
	if r.deps.Sessions == nil {
		return result, fmt.Errorf("session source is nil")
	}
	limit := r.cfg.BacklogBatch
	if limit <= 0 {
		limit = 100
	}

	session, err := r.deps.Sessions.Acquire(ctx)
	if err != nil {
		return result, err
	}
	defer session.Release()

	entries, err := session.PendingEvents(ctx, r.cfg.CrawlKey, limit)
	if err != nil {
		return result, fmt.Errorf("load pending events: %w", err)
	}
	result.Pending = len(entries)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		event, err := entry.Event()
		if err != nil {
			r.logger.Error("journal entry unreadable",
				zap.String("tx_hash", entry.TxHash), zap.Uint64("log_index", entry.LogIndex), zap.Error(err))
			r.deps.Metrics.deadLetter()
			result.Dead++
			update := model.ProjectionUpdate{
				Ref:       model.EventRef{TxHash: entry.TxHash, LogIndex: entry.LogIndex},
				Status:    model.ProjectionDead,
				Outcome:   outcomeError,
				LastError: err.Error(),
			}
			if err := session.MarkEvent(ctx, update); err != nil {
				return result, err
			}
			continue
		}

		outcome, err := r.project(ctx, session, event, entry.Attempts)
		if err != nil {
			return result, err
		}
		switch {
		case outcome == jobs.OutcomeApplied:
			result.Applied++
		case (outcome.Retryable() || outcome == "") && r.exhausted(entry.Attempts+1):
			result.Dead++
		}
	}

	if result.Pending > 0 {
		r.logger.Info("backlog drained",
			zap.String("crawl_key", r.cfg.CrawlKey),
			zap.Int("pending", result.Pending),
			zap.Int("applied", result.Applied),
			zap.Int("dead", result.Dead),
		)
	}
	return result, nil
}
