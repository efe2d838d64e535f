package notify

import (
	"encoding/json"
	"testing"

	"escrowIndexer/internal/model"
)

func TestMessageCarriesTypeAndChange(t *testing.T) {
	payload, err := Message(model.StatusChange{
		JobID:       7,
		From:        model.JobStatusNew,
		To:          model.JobStatusPushed,
		EventName:   model.EventJobCreated,
		TxHash:      "0xc1",
		BlockNumber: 103,
	})
	if err != nil {
		t.Fatalf("message: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != defaultChannel {
		t.Fatalf("type mismatch: %v", decoded["type"])
	}
	if decoded["jobId"] != float64(7) || decoded["to"] != "PUSHED" {
		t.Fatalf("change fields missing: %v", decoded)
	}
}
