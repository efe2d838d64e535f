package model

// JobStatus mirrors the status choices of the job table.
type JobStatus string

const (
	JobStatusNew       JobStatus = "NEW"
	JobStatusPushed    JobStatus = "PUSHED"
	JobStatusAccepted  JobStatus = "ACCEPTED"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusDisputed  JobStatus = "DISPUTED"
	JobStatusResolved  JobStatus = "RESOLVED"
)

// Job is the subset of the shared job row the indexer reads and writes.
type Job struct {
	ID                     int64
	Status                 JobStatus
	ClientID               int64
	FreelancerID           *int64
	Amount                 string
	TransactionCreate      *string
	TransactionAcceptJob   *string
	TransactionCompleteJob *string
}

// TxColumn selects one of the job's transaction hash columns.
type TxColumn string

const (
	TxColumnCreate   TxColumn = "transaction_create"
	TxColumnAccept   TxColumn = "transaction_accept_job"
	TxColumnComplete TxColumn = "transaction_complete_job"
)

// TxHash returns the hash currently stored in column, or "".
func (j Job) TxHash(column TxColumn) string {
	var value *string
	switch column {
	case TxColumnCreate:
		value = j.TransactionCreate
	case TxColumnAccept:
		value = j.TransactionAcceptJob
	case TxColumnComplete:
		value = j.TransactionCompleteJob
	}
	if value == nil {
		return ""
	}
	return *value
}

// JobTransition is a compare-and-set status change on a job row.
type JobTransition struct {
	JobID        int64
	From         JobStatus
	To           JobStatus
	Column       TxColumn
	TxHash       string
	FreelancerID *int64
}

// StatusChange is published after a transition is applied.
type StatusChange struct {
	JobID       int64     `json:"jobId"`
	From        JobStatus `json:"from"`
	To          JobStatus `json:"to"`
	EventName   string    `json:"eventName"`
	TxHash      string    `json:"txHash"`
	BlockNumber uint64    `json:"blockNumber"`
}
