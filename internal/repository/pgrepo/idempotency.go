package pgrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mikoajp/EventHub-sub001/internal/idempotency"
)

// IdempotencyRepo stores idempotency records in Postgres.
type IdempotencyRepo struct {
	pool querier
}

func NewIdempotencyRepo(pool querier) *IdempotencyRepo { return &IdempotencyRepo{pool: pool} }

var _ idempotency.Store = (*IdempotencyRepo)(nil)

func (r *IdempotencyRepo) Find(ctx context.Context, key, commandType string) (*idempotency.Record, error) {
	var (
		rec    idempotency.Record
		errMsg *string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT idempotency_key, command_type, status, result, error, created_at, completed_at
		 FROM idempotency_records WHERE idempotency_key = $1 AND command_type = $2`, key, commandType).
		Scan(&rec.Key, &rec.CommandType, &rec.Status, &rec.Result, &errMsg, &rec.CreatedAt, &rec.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, idempotency.ErrRecordNotFound
		}
		return nil, fmt.Errorf("find idempotency record: %w", err)
	}
	if errMsg != nil {
		rec.Error = *errMsg
	}
	return &rec, nil
}

func (r *IdempotencyRepo) Insert(ctx context.Context, rec *idempotency.Record) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO idempotency_records (idempotency_key, command_type, status, created_at) VALUES ($1, $2, $3, $4)`,
		rec.Key, rec.CommandType, string(rec.Status), rec.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return idempotency.ErrRecordExists
		}
		return fmt.Errorf("insert idempotency record: %w", err)
	}
	return nil
}

func (r *IdempotencyRepo) ReclaimFailed(ctx context.Context, key, commandType string, startedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE idempotency_records
		 SET status = 'PROCESSING', result = NULL, error = NULL, created_at = $1, completed_at = NULL
		 WHERE idempotency_key = $2 AND command_type = $3 AND status = 'FAILED'`,
		startedAt.UTC(), key, commandType)
	if err != nil {
		return false, fmt.Errorf("reclaim idempotency record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *IdempotencyRepo) Complete(ctx context.Context, key, commandType string, result []byte, at time.Time) error {
	return r.finish(ctx,
		`UPDATE idempotency_records SET status = 'COMPLETED', result = $1::jsonb, error = NULL, completed_at = $2
		 WHERE idempotency_key = $3 AND command_type = $4 AND status = 'PROCESSING'`,
		string(result), at.UTC(), key, commandType)
}

func (r *IdempotencyRepo) Fail(ctx context.Context, key, commandType, message string, at time.Time) error {
	return r.finish(ctx,
		`UPDATE idempotency_records SET status = 'FAILED', error = $1, completed_at = $2
		 WHERE idempotency_key = $3 AND command_type = $4 AND status = 'PROCESSING'`,
		message, at.UTC(), key, commandType)
}

func (r *IdempotencyRepo) finish(ctx context.Context, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update idempotency record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return idempotency.ErrRecordNotFound
	}
	return nil
}
