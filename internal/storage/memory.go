package storage

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/scrypster/confidant/pkg/types"
)

// MemoryStore is a thread-safe in-memory EngagementStore for development
// and tests. Data is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte // userID -> JSON-encoded record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

// Load retrieves a deep copy of the record for userID.
func (s *MemoryStore) Load(ctx context.Context, userID string) (*types.EngagementRecord, error) {
	s.mu.RLock()
	data, ok := s.records[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	var rec types.EngagementRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		// Corrupt entry reads as missing; the engine falls back to defaults.
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Save stores a snapshot of the record. Records are serialized on write
// so later mutations by the caller never alias stored state.
func (s *MemoryStore) Save(ctx context.Context, rec *types.EngagementRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.records[rec.UserID] = data
	s.mu.Unlock()
	return nil
}

// Delete removes the record for userID.
func (s *MemoryStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[userID]; !ok {
		return ErrNotFound
	}
	delete(s.records, userID)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
