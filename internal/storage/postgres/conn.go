package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"escrowIndexer/internal/model"
)

// Conn is a storage.Session backed by one pooled connection.
type Conn struct {
	conn *pgxpool.Conn
}

func (c *Conn) Release() {
	c.conn.Release()
}

func (c *Conn) JobByID(ctx context.Context, id int64) (model.Job, bool, error) {
	var (
		job    model.Job
		status string
	)
	row := c.conn.QueryRow(ctx, `
		SELECT id, status, client_id, freelancer_id, amount::text,
			transaction_create, transaction_accept_job, transaction_complete_job
		FROM `+jobTable+` WHERE id = $1
	`, id)
	err := row.Scan(&job.ID, &status, &job.ClientID, &job.FreelancerID, &job.Amount,
		&job.TransactionCreate, &job.TransactionAcceptJob, &job.TransactionCompleteJob)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Job{}, false, nil
		}
		return model.Job{}, false, err
	}
	job.Status = model.JobStatus(status)
	return job, true, nil
}

func (c *Conn) UserIDByWallet(ctx context.Context, wallet string) (int64, bool, error) {
	var id int64
	row := c.conn.QueryRow(ctx, `
		SELECT id FROM `+userTable+` WHERE lower(wallet_address) = lower($1) LIMIT 1
	`, wallet)
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return id, true, nil
}

// TransitionJob performs a compare-and-set on the job status. It reports
// false when the row no longer holds the expected status.
func (c *Conn) TransitionJob(ctx context.Context, t model.JobTransition) (bool, error) {
	sql, err := transitionSQL(t.Column)
	if err != nil {
		return false, err
	}
	tag, err := c.conn.Exec(ctx, sql, string(t.To), t.TxHash, t.FreelancerID, t.JobID, string(t.From))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func transitionSQL(column model.TxColumn) (string, error) {
	switch column {
	case model.TxColumnCreate, model.TxColumnAccept, model.TxColumnComplete:
	default:
		return "", fmt.Errorf("unknown transaction column %q", column)
	}
	return `UPDATE ` + jobTable + ` SET status = $1, ` + string(column) + ` = $2,
			freelancer_id = COALESCE($3, freelancer_id), updated_at = now()
		WHERE id = $4 AND status = $5`, nil
}

func (c *Conn) LoadCheckpoint(ctx context.Context, key string) (model.Checkpoint, bool, error) {
	return loadCheckpoint(ctx, c.conn, key)
}

// SaveCheckpoint advances the checkpoint value. A lower value never replaces
// a higher one.
func (c *Conn) SaveCheckpoint(ctx context.Context, key string, block uint64) error {
	tag, err := c.conn.Exec(ctx, `
		UPDATE `+checkpointTable+`
		SET value = CASE
				WHEN value IS NULL OR value = '' OR value::numeric < $1::text::numeric THEN $1::text
				ELSE value
			END,
			updated_at = now()
		WHERE key = $2
	`, formatBlock(block), key)
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrCheckpointNotFound, key)
	}
	return nil
}

func (c *Conn) AppendEvents(ctx context.Context, crawlKey string, events []model.DecodedEvent) ([]model.EventRef, error) {
	if len(events) == 0 {
		return nil, nil
	}
	batch := &pgx.Batch{}
	for _, event := range events {
		payload, err := json.Marshal(event.Decoded)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event.Ref(), err)
		}
		var jobID *int64
		if id, ok := event.JobID(); ok {
			jobID = &id
		}
		batch.Queue(`
			INSERT INTO `+journalTable+` (
				tx_hash, log_index, crawl_key, block_number, block_hash, address, event_name, job_id, payload
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (tx_hash, log_index) DO NOTHING
		`,
			event.TxHash,
			int64(event.LogIndex),
			crawlKey,
			int64(event.BlockNumber),
			event.BlockHash,
			event.Address,
			event.EventName,
			jobID,
			json.RawMessage(payload),
		)
	}

	br := c.conn.SendBatch(ctx, batch)
	defer br.Close()

	var inserted []model.EventRef
	for _, event := range events {
		tag, err := br.Exec()
		if err != nil {
			return nil, fmt.Errorf("journal %s: %w", event.Ref(), err)
		}
		if tag.RowsAffected() == 1 {
			inserted = append(inserted, event.Ref())
		}
	}
	return inserted, nil
}

func (c *Conn) PendingEvents(ctx context.Context, crawlKey string, limit int) ([]model.JournalEntry, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT tx_hash, log_index, crawl_key, block_number, block_hash, address, event_name,
			COALESCE(job_id, 0), payload, status, outcome, attempts, last_error, created_at, updated_at
		FROM `+journalTable+`
		WHERE crawl_key = $1 AND status = 'pending'
		ORDER BY block_number, log_index
		LIMIT $2
	`, crawlKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.JournalEntry
	for rows.Next() {
		var (
			entry       model.JournalEntry
			logIndex    int64
			blockNumber int64
			status      string
			payload     []byte
		)
		if err := rows.Scan(&entry.TxHash, &logIndex, &entry.CrawlKey, &blockNumber, &entry.BlockHash,
			&entry.Address, &entry.EventName, &entry.JobID, &payload, &status, &entry.Outcome,
			&entry.Attempts, &entry.LastError, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, err
		}
		entry.LogIndex = uint64(logIndex)
		entry.BlockNumber = uint64(blockNumber)
		entry.Status = model.ProjectionStatus(status)
		entry.Payload = json.RawMessage(payload)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (c *Conn) MarkEvent(ctx context.Context, update model.ProjectionUpdate) error {
	_, err := c.conn.Exec(ctx, `
		UPDATE `+journalTable+`
		SET status = $3, outcome = $4, last_error = $5, attempts = attempts + 1, updated_at = now()
		WHERE tx_hash = $1 AND log_index = $2
	`, update.Ref.TxHash, int64(update.Ref.LogIndex), string(update.Status), update.Outcome, update.LastError)
	if err != nil {
		return fmt.Errorf("mark event %s: %w", update.Ref, err)
	}
	return nil
}

func loadCheckpoint(ctx context.Context, q querier, key string) (model.Checkpoint, bool, error) {
	if key == "" {
		return model.Checkpoint{}, false, fmt.Errorf("checkpoint key required")
	}
	var (
		startAt   string
		value     *string
		updatedAt *time.Time
	)
	row := q.QueryRow(ctx, `
		SELECT start_at, value, updated_at FROM `+checkpointTable+` WHERE key = $1 LIMIT 1
	`, key)
	if err := row.Scan(&startAt, &value, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Checkpoint{}, false, nil
		}
		return model.Checkpoint{}, false, err
	}
	return buildCheckpoint(key, startAt, value, updatedAt)
}

func buildCheckpoint(key, startAt string, value *string, updatedAt *time.Time) (model.Checkpoint, bool, error) {
	cp := model.Checkpoint{Key: key, UpdatedAt: updatedAt}
	start, err := parseBlock(startAt)
	if err != nil {
		return model.Checkpoint{}, false, fmt.Errorf("checkpoint %s start_at: %w", key, err)
	}
	cp.StartAt = start
	if value != nil && strings.TrimSpace(*value) != "" {
		last, err := parseBlock(*value)
		if err != nil {
			return model.Checkpoint{}, false, fmt.Errorf("checkpoint %s value: %w", key, err)
		}
		cp.LastBlock = &last
	}
	return cp, true, nil
}

func parseBlock(raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

func formatBlock(block uint64) string {
	return strconv.FormatUint(block, 10)
}
