package escrow

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"escrowIndexer/internal/model"
)

// Decoder turns escrow contract logs into typed events. It holds no
// mutable state, so a single instance may be shared.
type Decoder struct {
	escrowABI   abi.ABI
	topicToName map[string]string
}

// NewDecoder builds a decoder for the three escrow job events.
func NewDecoder() (*Decoder, error) {
	escrowABI, err := EscrowABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string, 3)
	for _, name := range []string{model.EventJobCreated, model.EventJobAccepted, model.EventJobCompleted} {
		event, ok := escrowABI.Events[name]
		if !ok {
			return nil, fmt.Errorf("event %s missing from abi", name)
		}
		topicToName[strings.ToLower(event.ID.Hex())] = name
	}

	return &Decoder{
		escrowABI:   escrowABI,
		topicToName: topicToName,
	}, nil
}

// Topic0 returns the signature hash of a known event.
func (d *Decoder) Topic0(name string) (common.Hash, bool) {
	event, ok := d.escrowABI.Events[name]
	if !ok {
		return common.Hash{}, false
	}
	return event.ID, true
}

// CanDecode checks if the topic0 is a known escrow event.
func (d *Decoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts logs into events in input order. Logs with an unknown
// topic0 are dropped silently; known logs that fail to parse are reported
// as decode errors.
func (d *Decoder) Decode(logs []model.LogRecord) ([]model.DecodedEvent, []model.DecodeError) {
	events := make([]model.DecodedEvent, 0, len(logs))
	var failures []model.DecodeError
	for _, log := range logs {
		if log.Removed || !d.CanDecode(log.Topic0()) {
			continue
		}
		event, err := d.DecodeOne(log)
		if err != nil {
			failures = append(failures, decodeErrorFromRecord(log, err))
			continue
		}
		events = append(events, event)
	}
	return events, failures
}

// DecodeOne decodes a single log whose topic0 is a known escrow event.
func (d *Decoder) DecodeOne(log model.LogRecord) (model.DecodedEvent, error) {
	name, ok := d.topicToName[strings.ToLower(log.Topic0())]
	if !ok {
		return model.DecodedEvent{}, fmt.Errorf("unsupported topic0: %s", log.Topic0())
	}

	var (
		decoded interface{}
		err     error
	)
	switch name {
	case model.EventJobCreated:
		decoded, err = d.decodeJobCreated(log)
	case model.EventJobAccepted:
		decoded, err = d.decodeJobAccepted(log)
	case model.EventJobCompleted:
		decoded, err = d.decodeJobCompleted(log)
	default:
		err = fmt.Errorf("unsupported event name: %s", name)
	}
	if err != nil {
		return model.DecodedEvent{}, fmt.Errorf("%s: %w", name, err)
	}

	return model.DecodedEvent{
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		EventName:   name,
		Decoded:     decoded,
	}, nil
}

func (d *Decoder) decodeJobCreated(log model.LogRecord) (model.JobCreatedData, error) {
	event := d.escrowABI.Events[model.EventJobCreated]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.JobCreatedData{}, err
	}

	var indexed struct {
		JobId  *big.Int
		Client common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.JobCreatedData{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.JobCreatedData{}, err
	}
	if len(values) != 1 {
		return model.JobCreatedData{}, fmt.Errorf("unexpected values: %d", len(values))
	}
	amount, err := asBigInt(values[0])
	if err != nil {
		return model.JobCreatedData{}, err
	}

	jobID, err := jobIDFromBig(indexed.JobId)
	if err != nil {
		return model.JobCreatedData{}, err
	}

	return model.JobCreatedData{
		JobID:  jobID,
		Client: indexed.Client.Hex(),
		Amount: amount.String(),
	}, nil
}

func (d *Decoder) decodeJobAccepted(log model.LogRecord) (model.JobAcceptedData, error) {
	jobID, freelancer, err := d.decodeJobAndFreelancer(model.EventJobAccepted, log)
	if err != nil {
		return model.JobAcceptedData{}, err
	}
	return model.JobAcceptedData{JobID: jobID, Freelancer: freelancer.Hex()}, nil
}

func (d *Decoder) decodeJobCompleted(log model.LogRecord) (model.JobCompletedData, error) {
	jobID, freelancer, err := d.decodeJobAndFreelancer(model.EventJobCompleted, log)
	if err != nil {
		return model.JobCompletedData{}, err
	}
	return model.JobCompletedData{JobID: jobID, Freelancer: freelancer.Hex()}, nil
}

// decodeJobAndFreelancer handles the two events that only carry indexed
// (jobId, freelancer) arguments.
func (d *Decoder) decodeJobAndFreelancer(name string, log model.LogRecord) (int64, common.Address, error) {
	event := d.escrowABI.Events[name]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return 0, common.Address{}, err
	}

	var indexed struct {
		JobId      *big.Int
		Freelancer common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return 0, common.Address{}, fmt.Errorf("parse topics: %w", err)
	}

	jobID, err := jobIDFromBig(indexed.JobId)
	if err != nil {
		return 0, common.Address{}, err
	}
	return jobID, indexed.Freelancer, nil
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch typed := value.(type) {
	case *big.Int:
		return typed, nil
	case big.Int:
		return &typed, nil
	default:
		return nil, fmt.Errorf("unexpected numeric type %T", value)
	}
}

// jobIDFromBig narrows the uint256 job id to the job table's integer key.
func jobIDFromBig(value *big.Int) (int64, error) {
	if value == nil {
		return 0, fmt.Errorf("missing job id")
	}
	if value.Sign() < 0 || !value.IsInt64() {
		return 0, fmt.Errorf("job id out of range: %s", value)
	}
	return value.Int64(), nil
}

func decodeErrorFromRecord(record model.LogRecord, err error) model.DecodeError {
	return model.DecodeError{
		BlockNumber: record.BlockNumber,
		TxHash:      record.TxHash,
		LogIndex:    record.LogIndex,
		Address:     record.Address,
		Topic0:      record.Topic0(),
		Error:       err.Error(),
	}
}
