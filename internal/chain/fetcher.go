package chain

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"escrowIndexer/internal/model"
)

// FetchLogs returns the contract's logs in [fromBlock, toBlock], ordered by
// block number and log index. Logs outside the range are discarded.
func (c *Client) FetchLogs(ctx context.Context, fromBlock, toBlock uint64) ([]model.LogRecord, error) {
	if toBlock < fromBlock {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.contract},
	}
	logs, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, err
	}

	records := make([]model.LogRecord, 0, len(logs))
	for _, log := range logs {
		if log.BlockNumber < fromBlock || log.BlockNumber > toBlock {
			continue
		}
		records = append(records, buildLogRecord(log))
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].BlockNumber != records[j].BlockNumber {
			return records[i].BlockNumber < records[j].BlockNumber
		}
		return records[i].LogIndex < records[j].LogIndex
	})

	return records, nil
}

func buildLogRecord(log types.Log) model.LogRecord {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Removed:     log.Removed,
	}
}
