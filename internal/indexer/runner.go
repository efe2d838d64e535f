package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"escrowIndexer/internal/escrow"
	"escrowIndexer/internal/jobs"
	"escrowIndexer/internal/model"
	"escrowIndexer/internal/storage"
)

// ErrCheckpointMissing means no checkpoint row exists for the crawl key. The
// runner never invents a start block; the row must be seeded.
var ErrCheckpointMissing = errors.New("checkpoint missing")

const outcomeError = "error"

// Phases of a synchronizer cycle, logged as "phase".
const (
	PhaseIdle          = "IDLE"
	PhaseFetching      = "FETCHING"
	PhaseDecoding      = "DECODING"
	PhaseApplying      = "APPLYING"
	PhaseCheckpointing = "CHECKPOINTING"
	PhaseSleeping      = "SLEEPING"
)

// ChainReader is the read-only chain access the runner needs.
type ChainReader interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FetchLogs(ctx context.Context, fromBlock, toBlock uint64) ([]model.LogRecord, error)
}

// RunConfig holds runtime settings for the indexer.
type RunConfig struct {
	CrawlKey              string
	PollInterval          time.Duration
	MissingCheckpointWait time.Duration
	BatchSize             uint64
	MaxRetries            int
	RetryBackoff          time.Duration
	BacklogBatch          int
	BacklogMaxAttempts    int
}

// Dependencies are the collaborators wired into a Runner.
type Dependencies struct {
	Chain        ChainReader
	Decoder      *escrow.Decoder
	Sessions     storage.SessionSource
	Projector    *jobs.Projector
	DecodeErrors storage.DecodeErrorSink
	Metrics      *Metrics
}

// Runner moves escrow events from the chain into the job table.
type Runner struct {
	cfg    RunConfig
	deps   Dependencies
	logger *zap.Logger

	// serializes cycles and backlog drains
	mu sync.Mutex
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, deps Dependencies, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Projector == nil {
		deps.Projector = jobs.NewProjector(nil, logger)
	}
	return &Runner{cfg: cfg, deps: deps, logger: logger}
}

func (r *Runner) validate() error {
	if r.deps.Chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.deps.Decoder == nil {
		return fmt.Errorf("decoder is nil")
	}
	if r.deps.Sessions == nil {
		return fmt.Errorf("session source is nil")
	}
	if r.cfg.CrawlKey == "" {
		return fmt.Errorf("crawl key is required")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	return nil
}

// Probe checks that the chain answers. Run treats a failure as fatal.
func (r *Runner) Probe(ctx context.Context) error {
	chainID, err := r.deps.Chain.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	head, err := r.deps.Chain.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}
	r.deps.Metrics.setHead(head)
	r.logger.Info("chain reachable", zap.String("chain_id", chainID.String()), zap.Uint64("head", head))
	return nil
}

// Run probes the chain once and then cycles until ctx is cancelled. Cycle
// errors are logged and retried after the poll interval.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.validate(); err != nil {
		return err
	}
	if err := r.Probe(ctx); err != nil {
		return fmt.Errorf("startup probe: %w", err)
	}

	for {
		wait := r.cfg.PollInterval
		err := r.Cycle(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, ErrCheckpointMissing):
			r.logger.Warn("checkpoint missing, waiting for seed",
				zap.String("crawl_key", r.cfg.CrawlKey), zap.Duration("wait", r.cfg.MissingCheckpointWait))
			wait = r.cfg.MissingCheckpointWait
		default:
			r.logger.Error("cycle failed", zap.Error(err))
		}

		r.logger.Debug("phase", zap.String("phase", PhaseSleeping), zap.Duration("wait", wait))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Cycle runs one synchronization pass from the checkpoint up to the chain head.
func (r *Runner) Cycle(ctx context.Context) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	defer func() {
		r.deps.Metrics.observeCycle(cycleResult(err), time.Since(start))
	}()

	r.logger.Debug("phase", zap.String("phase", PhaseIdle))
	session, err := r.deps.Sessions.Acquire(ctx)
	if err != nil {
		return err
	}
	defer session.Release()

	cp, found, err := session.LoadCheckpoint(ctx, r.cfg.CrawlKey)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrCheckpointMissing, r.cfg.CrawlKey)
	}

	var head uint64
	err = withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		head, err = r.deps.Chain.LatestBlockNumber(ctx)
		if err != nil {
			r.logger.Warn("latest block fetch failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}
	r.deps.Metrics.setHead(head)

	from := cp.NextBlock()
	if from > head {
		r.logger.Debug("nothing to sync", zap.Uint64("from", from), zap.Uint64("head", head))
		return nil
	}

	ranges, err := SplitRange(from, head, r.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.syncRange(ctx, session, blockRange); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) syncRange(ctx context.Context, session storage.Session, blockRange BlockRange) error {
	r.logger.Debug("phase", zap.String("phase", PhaseFetching), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	logs, err := r.fetchLogsWithRetry(ctx, blockRange)
	if err != nil {
		return fmt.Errorf("fetch logs %s: %w", blockRange, err)
	}

	r.logger.Debug("phase", zap.String("phase", PhaseDecoding), zap.Int("logs", len(logs)))
	events, failures := r.deps.Decoder.Decode(logs)
	r.recordDecodeErrors(failures)

	r.logger.Debug("phase", zap.String("phase", PhaseApplying), zap.Int("events", len(events)))
	inserted, err := session.AppendEvents(ctx, r.cfg.CrawlKey, events)
	if err != nil {
		return fmt.Errorf("journal events %s: %w", blockRange, err)
	}
	fresh := make(map[model.EventRef]struct{}, len(inserted))
	for _, ref := range inserted {
		fresh[ref] = struct{}{}
	}
	applied := 0
	for _, event := range events {
		if _, ok := fresh[event.Ref()]; !ok {
			continue
		}
		outcome, err := r.project(ctx, session, event, 0)
		if err != nil {
			return err
		}
		if outcome == jobs.OutcomeApplied {
			applied++
		}
	}

	r.logger.Debug("phase", zap.String("phase", PhaseCheckpointing), zap.Uint64("block", blockRange.To))
	if err := session.SaveCheckpoint(ctx, r.cfg.CrawlKey, blockRange.To); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	r.deps.Metrics.setCheckpoint(blockRange.To)

	r.logger.Info("batch complete",
		zap.Uint64("from", blockRange.From),
		zap.Uint64("to", blockRange.To),
		zap.Int("logs", len(logs)),
		zap.Int("events", len(events)),
		zap.Int("journaled", len(inserted)),
		zap.Int("applied", applied),
		zap.Int("decode_errors", len(failures)),
	)
	return nil
}

func (r *Runner) fetchLogsWithRetry(ctx context.Context, blockRange BlockRange) ([]model.LogRecord, error) {
	var logs []model.LogRecord
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.deps.Chain.FetchLogs(ctx, blockRange.From, blockRange.To)
		if err != nil {
			r.logger.Warn("fetch logs failed", zap.Error(err), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
		}
		return err
	})
	return logs, err
}

func (r *Runner) recordDecodeErrors(failures []model.DecodeError) {
	if len(failures) == 0 {
		return
	}
	r.deps.Metrics.addDecodeErrors(len(failures))
	for _, failure := range failures {
		r.logger.Warn("decode failed",
			zap.Uint64("block_number", failure.BlockNumber),
			zap.String("tx_hash", failure.TxHash),
			zap.Uint64("log_index", failure.LogIndex),
			zap.String("error", failure.Error),
		)
	}
	if r.deps.DecodeErrors == nil {
		return
	}
	if err := r.deps.DecodeErrors.PutDecodeErrors(failures); err != nil {
		r.logger.Warn("store decode errors failed", zap.Error(err))
	}
}

// project applies one event and records the result in the journal. Projection
// errors are logged and leave the entry pending; only a failure to record the
// result is returned.
func (r *Runner) project(ctx context.Context, session storage.Session, event model.DecodedEvent, priorAttempts int) (jobs.Outcome, error) {
	outcome, applyErr := r.deps.Projector.Apply(ctx, session, event)
	update := model.ProjectionUpdate{
		Ref:     event.Ref(),
		Status:  outcome.ProjectionStatus(),
		Outcome: string(outcome),
	}
	if applyErr != nil {
		r.logger.Error("apply event failed",
			zap.String("event", event.EventName),
			zap.String("ref", event.Ref().String()),
			zap.Error(applyErr),
		)
		update.Status = model.ProjectionPending
		update.Outcome = outcomeError
		update.LastError = applyErr.Error()
	}
	if update.Status == model.ProjectionPending && r.exhausted(priorAttempts+1) {
		update.Status = model.ProjectionDead
		r.deps.Metrics.deadLetter()
		r.logger.Error("event dead-lettered",
			zap.String("event", event.EventName),
			zap.String("ref", event.Ref().String()),
			zap.String("outcome", update.Outcome),
			zap.Int("attempts", priorAttempts+1),
		)
	}
	r.deps.Metrics.observeEvent(event.EventName, update.Outcome)

	if err := session.MarkEvent(ctx, update); err != nil {
		return outcome, err
	}
	return outcome, nil
}

func (r *Runner) exhausted(attempts int) bool {
	return r.cfg.BacklogMaxAttempts > 0 && attempts >= r.cfg.BacklogMaxAttempts
}

func cycleResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCheckpointMissing):
		return "checkpoint_missing"
	default:
		return "error"
	}
}
