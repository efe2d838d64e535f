package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type fakeBackend struct {
	head  uint64
	logs  []types.Log
	err   error
	query ethereum.FilterQuery
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(5611), nil
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	return f.head, f.err
}

func (f *fakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.query = q
	if f.err != nil {
		return nil, f.err
	}
	return f.logs, nil
}

var escrowAddress = common.HexToAddress("0xBB6F3Ee65fd0C6Df66d29b5Ad9F3A8695A638172")

func TestFetchLogsFiltersRangeAndOrders(t *testing.T) {
	backend := &fakeBackend{logs: []types.Log{
		{BlockNumber: 104, Index: 2, TxHash: common.HexToHash("0x04"), Address: escrowAddress},
		{BlockNumber: 99, Index: 0, TxHash: common.HexToHash("0x99"), Address: escrowAddress},
		{BlockNumber: 101, Index: 5, TxHash: common.HexToHash("0x15"), Address: escrowAddress},
		{BlockNumber: 101, Index: 1, TxHash: common.HexToHash("0x11"), Address: escrowAddress},
		{BlockNumber: 106, Index: 0, TxHash: common.HexToHash("0x06"), Address: escrowAddress},
	}}
	client := newClientWithBackend(backend, escrowAddress)

	records, err := client.FetchLogs(context.Background(), 100, 105)
	if err != nil {
		t.Fatalf("fetch logs: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("expected 3 records in range, got %d", len(records))
	}
	wantOrder := []struct{ block, index uint64 }{{101, 1}, {101, 5}, {104, 2}}
	for i, want := range wantOrder {
		if records[i].BlockNumber != want.block || records[i].LogIndex != want.index {
			t.Fatalf("record %d = (%d,%d), want (%d,%d)", i, records[i].BlockNumber, records[i].LogIndex, want.block, want.index)
		}
	}

	if backend.query.FromBlock.Uint64() != 100 || backend.query.ToBlock.Uint64() != 105 {
		t.Fatalf("query range mismatch: %v-%v", backend.query.FromBlock, backend.query.ToBlock)
	}
	if len(backend.query.Addresses) != 1 || backend.query.Addresses[0] != escrowAddress {
		t.Fatalf("query must filter by contract address: %v", backend.query.Addresses)
	}
}

func TestFetchLogsPropagatesRPCError(t *testing.T) {
	rpcErr := errors.New("connection refused")
	client := newClientWithBackend(&fakeBackend{err: rpcErr}, escrowAddress)

	records, err := client.FetchLogs(context.Background(), 1, 2)
	if !errors.Is(err, rpcErr) {
		t.Fatalf("expected rpc error, got %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records on failure")
	}
}

func TestFetchLogsInvalidRange(t *testing.T) {
	client := newClientWithBackend(&fakeBackend{}, escrowAddress)
	if _, err := client.FetchLogs(context.Background(), 10, 9); err == nil {
		t.Fatalf("expected error for inverted range")
	}
}
