package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store. It honours the same uniqueness and
// conditional-update rules as the SQL stores and is meant for tests and
// single-process development runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func memKey(key, commandType string) string { return commandType + "\x00" + key }

func (s *MemoryStore) Find(_ context.Context, key, commandType string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[memKey(key, commandType)]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) Insert(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memKey(rec.Key, rec.CommandType)
	if _, ok := s.records[k]; ok {
		return ErrRecordExists
	}
	cp := *rec
	s.records[k] = &cp
	return nil
}

func (s *MemoryStore) ReclaimFailed(_ context.Context, key, commandType string, startedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[memKey(key, commandType)]
	if !ok || rec.Status != StatusFailed {
		return false, nil
	}
	rec.Status = StatusProcessing
	rec.Result = nil
	rec.Error = ""
	rec.CreatedAt = startedAt
	rec.CompletedAt = nil
	return true, nil
}

func (s *MemoryStore) Complete(_ context.Context, key, commandType string, result []byte, at time.Time) error {
	return s.finish(key, commandType, func(rec *Record) {
		rec.Status = StatusCompleted
		rec.Result = append([]byte(nil), result...)
		rec.CompletedAt = &at
	})
}

func (s *MemoryStore) Fail(_ context.Context, key, commandType, message string, at time.Time) error {
	return s.finish(key, commandType, func(rec *Record) {
		rec.Status = StatusFailed
		rec.Error = message
		rec.CompletedAt = &at
	})
}

func (s *MemoryStore) finish(key, commandType string, apply func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[memKey(key, commandType)]
	if !ok || rec.Status != StatusProcessing {
		return ErrRecordNotFound
	}
	apply(rec)
	return nil
}
