package model

import (
	"encoding/json"
	"time"
)

// ProjectionStatus tracks what happened to a journaled event.
type ProjectionStatus string

const (
	ProjectionPending ProjectionStatus = "pending"
	ProjectionApplied ProjectionStatus = "applied"
	ProjectionIgnored ProjectionStatus = "ignored"
	ProjectionDead    ProjectionStatus = "dead"
)

// JournalEntry is a decoded event persisted in the append-only event journal.
type JournalEntry struct {
	CrawlKey    string
	TxHash      string
	LogIndex    uint64
	BlockNumber uint64
	BlockHash   string
	Address     string
	EventName   string
	JobID       int64
	Payload     json.RawMessage
	Status      ProjectionStatus
	Outcome     string
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Event rebuilds the decoded event held by the entry.
func (e JournalEntry) Event() (DecodedEvent, error) {
	decoded, err := DecodePayload(e.EventName, e.Payload)
	if err != nil {
		return DecodedEvent{}, err
	}
	return DecodedEvent{
		BlockNumber: e.BlockNumber,
		BlockHash:   e.BlockHash,
		TxHash:      e.TxHash,
		LogIndex:    e.LogIndex,
		Address:     e.Address,
		EventName:   e.EventName,
		Decoded:     decoded,
	}, nil
}

// ProjectionUpdate records the result of projecting one journal entry.
type ProjectionUpdate struct {
	Ref       EventRef
	Status    ProjectionStatus
	Outcome   string
	LastError string
}
