package storage

import (
	"context"

	"escrowIndexer/internal/jobs"
	"escrowIndexer/internal/model"
)

// Session is one pooled database connection held for the duration of a cycle.
type Session interface {
	jobs.Store

	LoadCheckpoint(ctx context.Context, key string) (model.Checkpoint, bool, error)
	SaveCheckpoint(ctx context.Context, key string, block uint64) error

	// AppendEvents journals events idempotently and returns the refs that were new.
	AppendEvents(ctx context.Context, crawlKey string, events []model.DecodedEvent) ([]model.EventRef, error)
	PendingEvents(ctx context.Context, crawlKey string, limit int) ([]model.JournalEntry, error)
	// MarkEvent records a projection attempt and bumps the attempt counter.
	MarkEvent(ctx context.Context, update model.ProjectionUpdate) error

	Release()
}

// SessionSource hands out sessions.
type SessionSource interface {
	Acquire(ctx context.Context) (Session, error)
}

// DecodeErrorSink records logs that matched a known signature but failed to decode.
type DecodeErrorSink interface {
	PutDecodeErrors(records []model.DecodeError) error
}
