package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestLogRecordJSONRoundTrip(t *testing.T) {
	original := LogRecord{
		BlockNumber: 103,
		BlockHash:   "0xabc123",
		TxHash:      "0xdef456",
		TxIndex:     7,
		LogIndex:    12,
		Address:     "0x1111111111111111111111111111111111111111",
		Topics:      []string{"0xaaa", "0xbbb"},
		Data:        "0xdeadbeef",
	}

	b, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded LogRecord
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round-trip mismatch: %+v != %+v", original, decoded)
	}
	if decoded.Topic0() != "0xaaa" {
		t.Fatalf("topic0 mismatch: %s", decoded.Topic0())
	}
	if (LogRecord{}).Topic0() != "" {
		t.Fatalf("expected empty topic0 for anonymous log")
	}
}
