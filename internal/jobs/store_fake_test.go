package jobs

import (
	"context"
	"strings"

	"escrowIndexer/internal/model"
)

type memStore struct {
	jobs    map[int64]model.Job
	users   map[string]int64
	err     error
	updates int
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[int64]model.Job), users: make(map[string]int64)}
}

func (s *memStore) JobByID(_ context.Context, id int64) (model.Job, bool, error) {
	if s.err != nil {
		return model.Job{}, false, s.err
	}
	job, ok := s.jobs[id]
	return job, ok, nil
}

func (s *memStore) UserIDByWallet(_ context.Context, wallet string) (int64, bool, error) {
	if s.err != nil {
		return 0, false, s.err
	}
	id, ok := s.users[strings.ToLower(wallet)]
	return id, ok, nil
}

func (s *memStore) TransitionJob(_ context.Context, t model.JobTransition) (bool, error) {
	job, ok := s.jobs[t.JobID]
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
	s.jobs[t.JobID] = job
	s.updates++
	return true, nil
}
