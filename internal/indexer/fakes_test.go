package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"escrowIndexer/internal/escrow"
	"escrowIndexer/internal/model"
	"escrowIndexer/internal/storage"
)

var testContract = common.HexToAddress("0xBB6F3Ee65fd0C6Df66d29b5Ad9F3A8695A638172")

type fakeChain struct {
	chainID    int64
	head       uint64
	headErr    error
	logs       []model.LogRecord
	fetchErr   error
	fetchCalls []BlockRange
	headCalls  int
	onHead     func(call int)
}

func (c *fakeChain) GetChainID(context.Context) (*big.Int, error) {
	return big.NewInt(c.chainID), nil
}

func (c *fakeChain) LatestBlockNumber(context.Context) (uint64, error) {
	c.headCalls++
	if c.onHead != nil {
		c.onHead(c.headCalls)
	}
	if c.headErr != nil {
		return 0, c.headErr
	}
	return c.head, nil
}

func (c *fakeChain) FetchLogs(_ context.Context, fromBlock, toBlock uint64) ([]model.LogRecord, error) {
	c.fetchCalls = append(c.fetchCalls, BlockRange{From: fromBlock, To: toBlock})
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	var out []model.LogRecord
	for _, log := range c.logs {
		if log.BlockNumber >= fromBlock && log.BlockNumber <= toBlock {
			out = append(out, log)
		}
	}
	return out, nil
}

// memDB backs memSession with maps standing in for the shared tables.
type memDB struct {
	checkpoints map[string]model.Checkpoint
	jobs        map[int64]model.Job
	users       map[string]int64
	journal     map[model.EventRef]*model.JournalEntry
	order       []model.EventRef

	acquired int
	released int
	saves    []uint64
	marks    int
	dbErr    error
}

func newMemDB() *memDB {
	return &memDB{
		checkpoints: make(map[string]model.Checkpoint),
		jobs:        make(map[int64]model.Job),
		users:       make(map[string]int64),
		journal:     make(map[model.EventRef]*model.JournalEntry),
	}
}

func (db *memDB) seed(key string, startAt uint64, last *uint64) {
	db.checkpoints[key] = model.Checkpoint{Key: key, StartAt: startAt, LastBlock: last}
}

func (db *memDB) lastBlock(key string) *uint64 {
	return db.checkpoints[key].LastBlock
}

func (db *memDB) Acquire(context.Context) (storage.Session, error) {
	if db.dbErr != nil {
		return nil, db.dbErr
	}
	db.acquired++
	return &memSession{db: db}, nil
}

type memSession struct {
	db *memDB
}

func (s *memSession) Release() { s.db.released++ }

func (s *memSession) JobByID(_ context.Context, id int64) (model.Job, bool, error) {
	job, ok := s.db.jobs[id]
	return job, ok, nil
}

func (s *memSession) UserIDByWallet(_ context.Context, wallet string) (int64, bool, error) {
	id, ok := s.db.users[strings.ToLower(wallet)]
	return id, ok, nil
}

func (s *memSession) TransitionJob(_ context.Context, t model.JobTransition) (bool, error) {
	job, ok := s.db.jobs[t.JobID]
	if !ok || job.Status != t.From {
		return false, nil
	}
	tx := t.TxHash
	switch t.Column {
	case model.TxColumnCreate:
		job.TransactionCreate = &tx
	case model.TxColumnAccept:
		job.TransactionAcceptJob = &tx
	case model.TxColumnComplete:
		job.TransactionCompleteJob = &tx
	}
	if t.FreelancerID != nil {
		id := *t.FreelancerID
		job.FreelancerID = &id
	}
	job.Status = t.To
	s.db.jobs[t.JobID] = job
	return true, nil
}

func (s *memSession) LoadCheckpoint(_ context.Context, key string) (model.Checkpoint, bool, error) {
	cp, ok := s.db.checkpoints[key]
	return cp, ok, nil
}

func (s *memSession) SaveCheckpoint(_ context.Context, key string, block uint64) error {
	cp, ok := s.db.checkpoints[key]
	if !ok {
		return errors.New("checkpoint not found")
	}
	if cp.LastBlock == nil || *cp.LastBlock < block {
		value := block
		cp.LastBlock = &value
		now := time.Now()
		cp.UpdatedAt = &now
	}
	s.db.checkpoints[key] = cp
	s.db.saves = append(s.db.saves, block)
	return nil
}

func (s *memSession) AppendEvents(_ context.Context, crawlKey string, events []model.DecodedEvent) ([]model.EventRef, error) {
	var inserted []model.EventRef
	for _, event := range events {
		ref := event.Ref()
		if _, ok := s.db.journal[ref]; ok {
			continue
		}
		entry, err := journalEntry(crawlKey, event)
		if err != nil {
			return nil, err
		}
		s.db.journal[ref] = &entry
		s.db.order = append(s.db.order, ref)
		inserted = append(inserted, ref)
	}
	return inserted, nil
}

func (s *memSession) PendingEvents(_ context.Context, crawlKey string, limit int) ([]model.JournalEntry, error) {
	var out []model.JournalEntry
	for _, ref := range s.db.order {
		entry := s.db.journal[ref]
		if entry.CrawlKey == crawlKey && entry.Status == model.ProjectionPending {
			out = append(out, *entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].LogIndex < out[j].LogIndex
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memSession) MarkEvent(_ context.Context, update model.ProjectionUpdate) error {
	entry, ok := s.db.journal[update.Ref]
	if !ok {
		return errors.New("journal entry not found")
	}
	entry.Status = update.Status
	entry.Outcome = update.Outcome
	entry.LastError = update.LastError
	entry.Attempts++
	s.db.marks++
	return nil
}

func journalEntry(crawlKey string, event model.DecodedEvent) (model.JournalEntry, error) {
	payload, err := json.Marshal(event.Decoded)
	if err != nil {
		return model.JournalEntry{}, err
	}
	jobID, _ := event.JobID()
	return model.JournalEntry{
		CrawlKey:    crawlKey,
		TxHash:      event.TxHash,
		LogIndex:    event.LogIndex,
		BlockNumber: event.BlockNumber,
		BlockHash:   event.BlockHash,
		Address:     event.Address,
		EventName:   event.EventName,
		JobID:       jobID,
		Payload:     payload,
		Status:      model.ProjectionPending,
	}, nil
}

type recordingSink struct {
	records []model.DecodeError
}

func (s *recordingSink) PutDecodeErrors(records []model.DecodeError) error {
	s.records = append(s.records, records...)
	return nil
}

func newTestDecoder(t *testing.T) *escrow.Decoder {
	t.Helper()
	decoder, err := escrow.NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	return decoder
}

func jobCreatedLog(t *testing.T, block, logIndex uint64, jobID int64, client common.Address) model.LogRecord {
	t.Helper()
	escrowABI, err := escrow.EscrowABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	event := escrowABI.Events[model.EventJobCreated]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("pack job created: %v", err)
	}
	return logRecord(block, logIndex, event.ID, data, jobID, client)
}

func freelancerLog(t *testing.T, name string, block, logIndex uint64, jobID int64, freelancer common.Address) model.LogRecord {
	t.Helper()
	escrowABI, err := escrow.EscrowABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	return logRecord(block, logIndex, escrowABI.Events[name].ID, nil, jobID, freelancer)
}

func logRecord(block, logIndex uint64, topic0 common.Hash, data []byte, jobID int64, who common.Address) model.LogRecord {
	return model.LogRecord{
		BlockNumber: block,
		BlockHash:   common.BigToHash(new(big.Int).SetUint64(block)).Hex(),
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block*1000 + logIndex)).Hex(),
		LogIndex:    logIndex,
		Address:     testContract.Hex(),
		Topics: []string{
			topic0.Hex(),
			common.BigToHash(big.NewInt(jobID)).Hex(),
			common.BytesToHash(who.Bytes()).Hex(),
		},
		Data: hexutil.Encode(data),
	}
}
