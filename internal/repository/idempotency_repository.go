package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mikoajp/EventHub-sub001/internal/idempotency"
)

// IdempotencyRepo stores idempotency records in MySQL. The table carries a
// unique index on (idempotency_key, command_type).
type IdempotencyRepo struct {
	db *sql.DB
}

// NewIdempotencyRepo returns an IdempotencyRepo bound to db.
func NewIdempotencyRepo(db *sql.DB) *IdempotencyRepo { return &IdempotencyRepo{db: db} }

var _ idempotency.Store = (*IdempotencyRepo)(nil)

func (r *IdempotencyRepo) Find(ctx context.Context, key, commandType string) (*idempotency.Record, error) {
	const q = `SELECT idempotency_key, command_type, status, result, error, created_at, completed_at
	  FROM idempotency_records WHERE idempotency_key = ? AND command_type = ? LIMIT 1`
	var (
		rec         idempotency.Record
		status      string
		result      []byte
		errMsg      sql.NullString
		completedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, key, commandType).Scan(
		&rec.Key, &rec.CommandType, &status, &result, &errMsg, &rec.CreatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, idempotency.ErrRecordNotFound
		}
		return nil, fmt.Errorf("find idempotency record: %w", err)
	}
	rec.Status = idempotency.Status(status)
	rec.Result = result
	rec.Error = errMsg.String
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	return &rec, nil
}

// Insert adds a new record. A unique violation is reported as
// idempotency.ErrRecordExists.
func (r *IdempotencyRepo) Insert(ctx context.Context, rec *idempotency.Record) error {
	const q = `INSERT INTO idempotency_records (idempotency_key, command_type, status, created_at) VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, q, rec.Key, rec.CommandType, string(rec.Status), rec.CreatedAt.UTC()); err != nil {
		if isDuplicateKey(err) {
			return idempotency.ErrRecordExists
		}
		return fmt.Errorf("insert idempotency record: %w", err)
	}
	return nil
}

// ReclaimFailed moves a FAILED record back to PROCESSING. The status
// predicate in the WHERE clause makes concurrent reclaims race on the row
// lock; only the first one changes a row.
func (r *IdempotencyRepo) ReclaimFailed(ctx context.Context, key, commandType string, startedAt time.Time) (bool, error) {
	const q = `UPDATE idempotency_records
	  SET status = 'PROCESSING', result = NULL, error = NULL, created_at = ?, completed_at = NULL
	  WHERE idempotency_key = ? AND command_type = ? AND status = 'FAILED'`
	res, err := r.db.ExecContext(ctx, q, startedAt.UTC(), key, commandType)
	if err != nil {
		return false, fmt.Errorf("reclaim idempotency record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reclaim idempotency record: %w", err)
	}
	return n == 1, nil
}

func (r *IdempotencyRepo) Complete(ctx context.Context, key, commandType string, result []byte, at time.Time) error {
	const q = `UPDATE idempotency_records SET status = 'COMPLETED', result = ?, error = NULL, completed_at = ?
	  WHERE idempotency_key = ? AND command_type = ? AND status = 'PROCESSING'`
	return r.finish(ctx, q, result, at.UTC(), key, commandType)
}

func (r *IdempotencyRepo) Fail(ctx context.Context, key, commandType, message string, at time.Time) error {
	const q = `UPDATE idempotency_records SET status = 'FAILED', error = ?, completed_at = ?
	  WHERE idempotency_key = ? AND command_type = ? AND status = 'PROCESSING'`
	return r.finish(ctx, q, message, at.UTC(), key, commandType)
}

func (r *IdempotencyRepo) finish(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update idempotency record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update idempotency record: %w", err)
	}
	if n == 0 {
		return idempotency.ErrRecordNotFound
	}
	return nil
}
