package jobs

import "escrowIndexer/internal/model"

// Outcome is the result of projecting one event onto the job table.
type Outcome string

const (
	OutcomeApplied     Outcome = "applied"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeStale       Outcome = "stale"
	OutcomeConflict    Outcome = "conflict"
	OutcomeOutOfOrder  Outcome = "out_of_order"
	OutcomeRaced       Outcome = "raced"
	OutcomeJobMissing  Outcome = "job_missing"
	OutcomeUserMissing Outcome = "user_missing"
	OutcomeUnsupported Outcome = "unsupported"
)

// Retryable reports whether a later attempt may succeed.
func (o Outcome) Retryable() bool {
	switch o {
	case OutcomeOutOfOrder, OutcomeRaced, OutcomeJobMissing, OutcomeUserMissing:
		return true
	}
	return false
}

// ProjectionStatus maps the outcome to the journal status it leaves behind.
func (o Outcome) ProjectionStatus() model.ProjectionStatus {
	switch {
	case o == OutcomeApplied:
		return model.ProjectionApplied
	case o.Retryable():
		return model.ProjectionPending
	default:
		return model.ProjectionIgnored
	}
}
