package model

import (
	"encoding/json"
	"fmt"
)

// Escrow contract event names.
const (
	EventJobCreated   = "JobCreated"
	EventJobAccepted  = "JobAccepted"
	EventJobCompleted = "JobCompleted"
)

// JobCreatedData is the decoded JobCreated payload.
type JobCreatedData struct {
	JobID  int64  `json:"job_id"`
	Client string `json:"client"`
	Amount string `json:"amount"`
}

// JobAcceptedData is the decoded JobAccepted payload.
type JobAcceptedData struct {
	JobID      int64  `json:"job_id"`
	Freelancer string `json:"freelancer"`
}

// JobCompletedData is the decoded JobCompleted payload.
type JobCompletedData struct {
	JobID      int64  `json:"job_id"`
	Freelancer string `json:"freelancer"`
}

// DecodePayload restores a typed payload from its journaled JSON form.
func DecodePayload(eventName string, raw json.RawMessage) (interface{}, error) {
	switch eventName {
	case EventJobCreated:
		var data JobCreatedData
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", eventName, err)
		}
		return data, nil
	case EventJobAccepted:
		var data JobAcceptedData
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", eventName, err)
		}
		return data, nil
	case EventJobCompleted:
		var data JobCompletedData
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", eventName, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported event name: %s", eventName)
	}
}
