// Package idempotency gates command execution on a (key, command type) pair
// so that a command runs at most once no matter how often a client retries.
package idempotency

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of an idempotency record.
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

var (
	// ErrCommandAlreadyProcessing is returned when another execution holds
	// the same key and has not finished yet.
	ErrCommandAlreadyProcessing = errors.New("command already processing")

	// ErrRecordNotFound is returned by stores when no record exists.
	ErrRecordNotFound = errors.New("idempotency record not found")

	// ErrRecordExists is returned by Store.Insert when the composite
	// unique constraint on (key, command_type) rejects the row.
	ErrRecordExists = errors.New("idempotency record already exists")
)

// Record mirrors a row of idempotency_records.
type Record struct {
	Key         string
	CommandType string
	Status      Status
	Result      []byte // opaque JSON written on completion
	Error       string // failure message, empty unless FAILED
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Store persists records. Implementations must enforce uniqueness of
// (Key, CommandType) atomically; the coordinator relies on Insert being the
// admission gate.
type Store interface {
	Find(ctx context.Context, key, commandType string) (*Record, error)
	Insert(ctx context.Context, rec *Record) error
	// ReclaimFailed flips a FAILED record back to PROCESSING. It reports
	// false when the record is not FAILED anymore (another caller won).
	ReclaimFailed(ctx context.Context, key, commandType string, startedAt time.Time) (bool, error)
	Complete(ctx context.Context, key, commandType string, result []byte, at time.Time) error
	Fail(ctx context.Context, key, commandType, message string, at time.Time) error
}
