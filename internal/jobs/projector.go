package jobs

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"escrowIndexer/internal/model"
	"escrowIndexer/internal/notify"
)

// Store is the job repository used by the projector.
type Store interface {
	JobByID(ctx context.Context, id int64) (model.Job, bool, error)
	UserIDByWallet(ctx context.Context, wallet string) (int64, bool, error)
	TransitionJob(ctx context.Context, t model.JobTransition) (bool, error)
}

// Projector applies decoded events to job rows through guarded transitions.
type Projector struct {
	publisher notify.Publisher
	logger    *zap.Logger
}

// NewProjector builds a Projector. A nil publisher disables notifications.
func NewProjector(publisher notify.Publisher, logger *zap.Logger) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = notify.Nop{}
	}
	return &Projector{publisher: publisher, logger: logger}
}

// Apply projects one event. Missing rows and status mismatches are reported
// through the Outcome; only store failures are returned as errors.
func (p *Projector) Apply(ctx context.Context, store Store, event model.DecodedEvent) (Outcome, error) {
	rule, ok := RuleFor(event.EventName)
	if !ok {
		return OutcomeUnsupported, nil
	}
	jobID, wallet, err := eventSubject(event)
	if err != nil {
		p.logger.Warn("unexpected event payload", zap.String("event", event.EventName), zap.Error(err))
		return OutcomeUnsupported, nil
	}

	fields := []zap.Field{
		zap.String("event", event.EventName),
		zap.Int64("job_id", jobID),
		zap.String("tx_hash", event.TxHash),
		zap.Uint64("block_number", event.BlockNumber),
	}

	userID, found, err := store.UserIDByWallet(ctx, wallet)
	if err != nil {
		return "", fmt.Errorf("lookup user %s: %w", wallet, err)
	}
	if !found {
		p.logger.Warn("wallet not linked to a user", append(fields, zap.String("wallet", wallet))...)
		return OutcomeUserMissing, nil
	}

	job, found, err := store.JobByID(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("lookup job %d: %w", jobID, err)
	}
	if !found {
		p.logger.Warn("job not found", fields...)
		return OutcomeJobMissing, nil
	}

	switch Locate(job.Status, rule) {
	case PositionReady:
	case PositionReached:
		if strings.EqualFold(job.TxHash(rule.Column), event.TxHash) {
			p.logger.Debug("event already applied", fields...)
			return OutcomeDuplicate, nil
		}
		p.logger.Warn("stale event ignored",
			append(fields, zap.String("status", string(job.Status)), zap.String("recorded_tx", job.TxHash(rule.Column)))...)
		return OutcomeStale, nil
	case PositionOffChain:
		p.logger.Warn("job outside chain lifecycle", append(fields, zap.String("status", string(job.Status)))...)
		return OutcomeConflict, nil
	default:
		p.logger.Info("event ahead of job status", append(fields, zap.String("status", string(job.Status)))...)
		return OutcomeOutOfOrder, nil
	}

	transition := model.JobTransition{
		JobID:  jobID,
		From:   rule.From,
		To:     rule.To,
		Column: rule.Column,
		TxHash: event.TxHash,
	}
	if rule.To == model.JobStatusAccepted {
		transition.FreelancerID = &userID
	}

	updated, err := store.TransitionJob(ctx, transition)
	if err != nil {
		return "", fmt.Errorf("transition job %d: %w", jobID, err)
	}
	if !updated {
		p.logger.Warn("job status changed concurrently", fields...)
		return OutcomeRaced, nil
	}

	p.logger.Info("job transitioned", append(fields,
		zap.String("from", string(rule.From)),
		zap.String("to", string(rule.To)),
	)...)

	change := model.StatusChange{
		JobID:       jobID,
		From:        rule.From,
		To:          rule.To,
		EventName:   event.EventName,
		TxHash:      event.TxHash,
		BlockNumber: event.BlockNumber,
	}
	if err := p.publisher.PublishStatusChange(ctx, change); err != nil {
		p.logger.Warn("publish status change failed", append(fields, zap.Error(err))...)
	}

	return OutcomeApplied, nil
}

// eventSubject returns the job id and the wallet that must resolve to a user.
func eventSubject(event model.DecodedEvent) (int64, string, error) {
	switch data := event.Decoded.(type) {
	case model.JobCreatedData:
		return data.JobID, data.Client, nil
	case model.JobAcceptedData:
		return data.JobID, data.Freelancer, nil
	case model.JobCompletedData:
		return data.JobID, data.Freelancer, nil
	default:
		return 0, "", fmt.Errorf("payload type %T", event.Decoded)
	}
}
