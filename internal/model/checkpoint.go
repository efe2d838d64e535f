package model

import "time"

// Checkpoint is the persisted crawl progress for one crawl key.
type Checkpoint struct {
	Key       string
	StartAt   uint64
	LastBlock *uint64
	UpdatedAt *time.Time
}

// NextBlock returns the first block that has not been processed yet.
// A checkpoint that was never advanced starts at StartAt inclusive.
func (c Checkpoint) NextBlock() uint64 {
	if c.LastBlock == nil {
		return c.StartAt
	}
	return *c.LastBlock + 1
}
