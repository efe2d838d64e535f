package model

import "fmt"

// DecodedEvent is an escrow log matched against a known event signature.
type DecodedEvent struct {
	BlockNumber uint64      `json:"block_number"`
	BlockHash   string      `json:"block_hash"`
	TxHash      string      `json:"tx_hash"`
	LogIndex    uint64      `json:"log_index"`
	Address     string      `json:"address"`
	EventName   string      `json:"event_name"`
	Decoded     interface{} `json:"decoded"`
}

// EventRef identifies a log on chain.
type EventRef struct {
	TxHash   string
	LogIndex uint64
}

func (r EventRef) String() string {
	return fmt.Sprintf("%s:%d", r.TxHash, r.LogIndex)
}

// Ref returns the event's chain reference.
func (e DecodedEvent) Ref() EventRef {
	return EventRef{TxHash: e.TxHash, LogIndex: e.LogIndex}
}

// JobID returns the job referenced by the decoded payload.
func (e DecodedEvent) JobID() (int64, bool) {
	switch data := e.Decoded.(type) {
	case JobCreatedData:
		return data.JobID, true
	case JobAcceptedData:
		return data.JobID, true
	case JobCompletedData:
		return data.JobID, true
	default:
		return 0, false
	}
}
