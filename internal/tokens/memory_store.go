package tokens

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps refresh token records in process memory.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]Record
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[uuid.UUID]Record)}
}

func (s *InMemoryStore) Create(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.ID] = record
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id uuid.UUID) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return record, nil
}

func (s *InMemoryStore) Rotate(_ context.Context, id uuid.UUID, successor Record, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	if record.Status != StatusIssued || !at.Before(record.ExpiresAt) {
		return ErrStale
	}

	next := successor.ID
	record.Status = StatusRotated
	record.ReplacedBy = &next
	s.records[id] = record
	s.records[successor.ID] = successor
	return nil
}

func (s *InMemoryStore) Revoke(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return false, ErrRecordNotFound
	}
	if record.Status != StatusIssued {
		return false, nil
	}
	record.Status = StatusRevoked
	record.RevokedAt = &at
	s.records[id] = record
	return true, nil
}

func (s *InMemoryStore) RevokeFamily(_ context.Context, familyID uuid.UUID, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var revoked int64
	for id, record := range s.records {
		if record.FamilyID != familyID || record.Status != StatusIssued {
			continue
		}
		record.Status = StatusRevoked
		record.RevokedAt = &at
		s.records[id] = record
		revoked++
	}
	return revoked, nil
}

func (s *InMemoryStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, record := range s.records {
		if record.ExpiresAt.Before(before) {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}
